// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"regexp"
	"strings"
)

var gsURIPattern = regexp.MustCompile(`^gs://[a-z0-9][a-z0-9._-]*/\S.*$`)

// IsGSURI reports whether uri has the form gs://<bucket>/<object>.
func IsGSURI(uri string) bool {
	return gsURIPattern.MatchString(uri)
}

// ModalityOf selects the modality from which fields are present.
// Both present selects multimodal; neither is ErrInvalidInput.
func ModalityOf(text, imageURI string) (Modality, error) {
	hasText := strings.TrimSpace(text) != ""
	hasImage := strings.TrimSpace(imageURI) != ""
	switch {
	case hasText && hasImage:
		return ModalityMultimodal, nil
	case hasText:
		return ModalityText, nil
	case hasImage:
		return ModalityImage, nil
	}
	return 0, fmt.Errorf("%w: query needs text, image, or both", ErrInvalidInput)
}

// Modality returns the modality implied by the query fields.
func (q Query) Modality() (Modality, error) {
	return ModalityOf(q.Text, q.ImageURI)
}

// ValidateQuery checks a query before it is embedded.
func ValidateQuery(q Query) (Modality, error) {
	m, err := q.Modality()
	if err != nil {
		return 0, err
	}
	if m != ModalityText && !IsGSURI(q.ImageURI) {
		return 0, fmt.Errorf("%w: image must be a gs://<bucket>/<object> URI, got %q", ErrInvalidInput, q.ImageURI)
	}
	return m, nil
}

// ValidateProduct checks the invariants every persisted row must hold.
func ValidateProduct(p *Product, dimension int) error {
	if p == nil {
		return fmt.Errorf("%w: product is nil", ErrInvalidProduct)
	}
	if p.UniqID == "" {
		return fmt.Errorf("%w: empty uniq_id", ErrInvalidProduct)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("%w: %s has no description", ErrInvalidProduct, p.UniqID)
	}
	if !IsGSURI(p.ImageURI) {
		return fmt.Errorf("%w: %s has no gs:// image_uri", ErrInvalidProduct, p.UniqID)
	}
	for _, m := range Modalities {
		if got := len(p.Embedding(m)); got != dimension {
			return fmt.Errorf("%w: %s %s embedding has %d dimensions, want %d",
				ErrInvalidProduct, p.UniqID, m, got, dimension)
		}
	}
	return nil
}
