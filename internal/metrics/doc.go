// Package metrics counts what the reconcile engine and the lifecycle runner
// do. Collectors live in a private registry; callers export it however they
// like, the CLI writes it as a textfile-collector file.
package metrics
