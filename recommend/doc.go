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


// Package recommend answers shopper queries against the embedded catalog.
//
// The Service runs one request strictly in sequence:
//   - Validate the query and pick the modality from which fields are present
//   - Embed the query on the matching endpoint
//   - Search the matching embedding column for the top K products
//   - Render a grounding prompt and forward it to the re-ranking model
//
// The model's answer is returned unchanged. A search that finds nothing
// returns core.ErrNoMatches without calling the model.
package recommend
