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
The network package defines the network layer (OSI layer 3) device abstraction. The [IPDevice] interface reads and
writes whole IP packets on a physical or virtual network device, such as the TUN interface that captures DNS traffic.

[PipeDevice] is an in-memory [IPDevice] for tests and for hosts where a TUN interface can't be created. The
[network/dnsrouter] sub-package reads DNS queries from an [IPDevice] and writes the replies back to it.
*/
package network
