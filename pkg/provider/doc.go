/*
Package provider defines the contract between gofast and a cloud compute API.

A Provider creates an instance from a template, reports its status and public
address, and deletes it. The provisioner polls GetInstance until the status
is "active" and an address is assigned; nothing else about the instance is
interpreted.

	provider.Provider
	├── digitalocean.Provider   droplets via godo
	├── provider.Limited        shared rate limiter around any Provider
	└── mocks.MockProvider      gomock double for tests

Deleting or fetching an instance the provider no longer knows returns an error
wrapping ErrNotFound; callers that are tearing down treat that as success.
*/
package provider
