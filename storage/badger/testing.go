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


package badger

import "context"

// NewMemoryStores creates in-memory stores for testing. The vector store
// uses the collection "test" with dim dimensions and is already created.
// Caller must Close the result when done.
func NewMemoryStores(dim int) (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	stores, err := newStores(backend, "test", dim)
	if err != nil {
		return nil, err
	}
	if err := stores.Vectors.EnsureCollection(context.Background()); err != nil {
		stores.Close()
		return nil, err
	}
	return stores, nil
}
