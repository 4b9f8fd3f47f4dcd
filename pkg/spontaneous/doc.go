// Package spontaneous finds companies open to unsolicited applications and
// records the applications a user sends them.
//
// Company search goes through the La Bonne Boîte API with a bearer token from
// the shared credential cache. Without configured credentials, or when the
// API fails, a fixed sample listing is returned so the feature stays usable.
//
// Sending costs one spontaneous credit per company and is charged through the
// consumption guard before anything is recorded.
package spontaneous
