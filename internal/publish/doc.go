// Package publish talks to the remote posting API. The API takes
// multipart form submissions authenticated with an x-api-key header;
// this package owns the form encoding, the reachability probe used by
// connection tests, and the dry-run mode that swallows submissions
// during local development.
package publish
