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

package filter

// FallbackDomains are blocked from the moment an [Engine] is created, before any list is loaded.
var FallbackDomains = []string{
	// Google ads
	"googlesyndication.com",
	"googleadservices.com",
	"doubleclick.net",
	"googleads.g.doubleclick.net",
	"pagead2.googlesyndication.com",
	"adservice.google.com",

	// Facebook ads
	"pixel.facebook.com",
	"an.facebook.com",

	// Ad networks
	"adnxs.com",
	"adsrvr.org",
	"criteo.com",
	"outbrain.com",
	"taboola.com",
	"amazon-adsystem.com",

	// Trackers
	"google-analytics.com",
	"googletagmanager.com",
	"analytics.google.com",
	"hotjar.com",
	"mixpanel.com",

	// Mobile ad SDKs
	"ads.mopub.com",
	"ads.inmobi.com",
	"ads.unity3d.com",
	"applovin.com",
	"vungle.com",
}
