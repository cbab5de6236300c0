// Package labelsync mirrors a product/company/image catalog into an external
// annotation service and keeps the two consistent.
//
// Images are stored under structured object keys through an ObjectStore
// backed by a pluggable BlobStore (memory, S3). The Syncer mirrors catalog
// intent into the annotation service as one project per product and one task
// per stored image, and repairs duplicates the service itself does not
// prevent.
//
// Consistency Model
//
// The annotation service has no uniqueness constraints. For any project title
// at most one project should exist, and for any (project, image filename)
// pair at most one task. EnsureProject and ImportImages check before they
// create, but concurrent or partially failed runs can still leave duplicates
// behind, so every mutating operation is followed by Reconcile, which keeps
// the member with the lowest id in every duplicate group and deletes the
// rest.
package labelsync
