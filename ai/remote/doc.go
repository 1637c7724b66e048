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


// Package remote implements the ai interfaces over HTTP.
//
// Embedder posts JSON to three modality endpoints and reads a flat float
// array back under text_embeds, image_embeds or multimodal_embeds.
// ChatClient speaks the OpenAI-style chat-completions protocol and
// implements langchaingo's llms.Model.
//
// Transport failures and 5xx answers are retried with capped exponential
// backoff. Other non-2xx answers and malformed payloads fail at once.
// Both clients share one *http.Client per Provider, with bounded
// connections per host and explicit dial, header and total deadlines.
//
// # Usage
//
//	provider, err := remote.NewProvider(cfg)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	if err := provider.Probe(ctx); err != nil {
//	    return err // endpoints disagree with cfg.Dimension
//	}
package remote
