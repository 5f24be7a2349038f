/*
Package config loads the fleet file.

The fleet file is YAML and is read once at startup; the resulting
types.FleetConfig is never modified afterwards.

	concurrency: 3
	proxy: true
	port: 8080
	start: node /root/worker/index.js
	artifact:
	  path: ./worker.tgz
	  build: npm pack
	setup:
	  - [exec, apt-get update && apt-get install -y nodejs]
	  - [upload, ./worker.tgz, /root/worker.tgz]
	  - [exec, mkdir -p /root/worker && tar xzf /root/worker.tgz -C /root/worker]
	template:
	  region: nyc3
	  size: s-1vcpu-1gb
	  image: ubuntu-22-04-x64
	  ssh_keys: ["3b:16:bf:e4:8b:00:8b:b8:59:8c:a9:d3:f0:19:45:fa"]
	credentials:
	  ssh_key: ~/.ssh/id_rsa
	timeouts:
	  poll_timeout: 10m

Setup steps are [operation, args...] lists resolved at load time; an unknown
operation fails the load before any instance exists. GOFAST_TOKEN takes
precedence over credentials.token. All errors describing the file itself are
*Error values naming the offending field.
*/
package config
