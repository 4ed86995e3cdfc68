// Copyright 2025 The Crunch Authors
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


// Package nyt holds the article wire formats and the sources they come from.
//
// Archive months are fetched from the archive endpoint (Client.FetchArchive),
// written to disk as {dir}/{year}_{month}.json by the scraper, and read back
// by FileLoader during bulk ingestion. The homepage snapshot comes from the
// top stories endpoint (Client.FetchHomepage) and feeds the updater.
//
// Which text gets embedded is decided by a Field. HeadlineMain is the default;
// Snippet is also registered, and RegisterField adds more.
package nyt
