/*
Package storage keeps a durable ledger of the provider instances gofast has
created, backed by BoltDB.

The fleet itself is in-memory: workers live only as long as one run. The
ledger exists for the failure case. Every instance is recorded right after
the provider accepts the create request and removed once it is destroyed, so
a coordinator that crashes or is killed leaves behind an exact list of what
is still billing. `gofast reap` reads that list and destroys each entry.

# Layout

	<data-dir>/gofast.db
	└── instances            key: provider instance id
	    └── {"id","name","address","role","created_at"}   JSON value

Role is "worker" for fleet instances and "proxy" for the tunnel host.

# Usage

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	leaked, _ := store.List()
	for _, inst := range leaked {
		_ = provisioner.Destroy(ctx, inst.ID)
	}

BoltDB takes an exclusive file lock, so two coordinators cannot share a data
directory; NewBoltStore gives up after two seconds when the lock is held.
*/
package storage
