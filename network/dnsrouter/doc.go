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
Package dnsrouter answers the DNS queries that arrive on a [network.IPDevice].

Every IPv4 packet read from the device is parsed as a DNS query to port 53. Queries for blocked domains are
answered locally with 0.0.0.0 (or NXDOMAIN, see [WithBlockMode]) and never leave the host. Other queries are sent to
the upstream resolver and its reply is wrapped in new IPv4 and UDP headers by [ReplyFrame] and written back to the
device. Any other packet is dropped.

By default frames are handled one at a time, so a slow upstream server delays every later query. [WithConcurrency]
lets several queries wait for the upstream server at once, with a single goroutine writing to the device.
*/
package dnsrouter
