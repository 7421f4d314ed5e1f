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
Package dns reads and writes the DNS messages that flow through a filtering tunnel.

The [Domain Name System] (DNS) is responsible for mapping domain names to IP addresses. Because domain resolution
gatekeeps connections and is predominantly done in plaintext, it is [commonly used for network-level filtering].

# Queries

[ParseQuery] takes a raw IPv4 frame read from a virtual network device and extracts the first question of a
DNS-over-UDP query sent to port 53. Anything else (IPv6, TCP, other ports, responses, truncated frames) is rejected
with an error wrapping [ErrMalformed], and callers are expected to drop the frame.

Question names are decoded as plain length-prefixed labels. A compression pointer inside the question name is
consumed as a 2-byte terminal token and is not followed, so a compressed question name decodes to the labels that
precede the pointer.

# Responses

[BlockedResponse] answers a query locally with a single A record pointing to 0.0.0.0. [NXDomainResponse] and
[ServFailResponse] answer with an error code and no records. All of them copy the question section of the query
byte for byte.

# Upstream resolution

[Upstream] forwards the DNS payload of allowed queries to a plain DNS-over-UDP server and returns its reply.
[RoundTripper] performs complete DNS transactions and is used to probe candidate servers.

[Domain Name System]: https://datatracker.ietf.org/doc/html/rfc1034
[commonly used for network-level filtering]: https://datatracker.ietf.org/doc/html/rfc9505#section-5.1.1
*/
package dns
