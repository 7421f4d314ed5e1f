// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package filter decides which domains get blocked.

An [Engine] checks a domain against three lists in order: the user whitelist allows it, the user blacklist blocks
it, and the default blocklist blocks it. A domain on none of them is allowed.

Each list is a [Set] of patterns. A pattern is either a domain ("example.com"), which matches itself and its
subdomains, or a wildcard ("*.example.com"), which matches the same names. [Matches] is the reference definition;
[Set] answers the same question for a whole list in time proportional to the number of labels in the domain.

The default list starts with [FallbackDomains] and is replaced by [Engine.LoadDefaults] from a [RuleSource], such
as the [Bundled] list, a [HostsFile] or a [HostsURL]. User lists are persisted by a [RuleStore].
*/
package filter
