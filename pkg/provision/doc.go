/*
Package provision turns a worker name into an active, addressable instance.

	Create(ctx, w)
	  │ CreateInstance ── error ──► *Error (never retried)
	  ▼
	requested ──► provisioning
	  │ every PollInterval: GetInstance
	  │   transient error   → logged, keep polling
	  │   ErrNotFound       → *Error
	  │   status "active"   → done
	  │ PollTimeout reached → ErrTimeout
	  ▼
	provisioning ──► active   (w.Address set)

Every instance accepted by the provider is written to the storage ledger
before polling starts and removed by Destroy, so an interrupted run can be
reaped later. Destroy treats provider.ErrNotFound as success.
*/
package provision
