package fleet

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cuemby/gofast/pkg/events"
	"github.com/cuemby/gofast/pkg/remote"
	"github.com/cuemby/gofast/pkg/remote/remotetest"
	"github.com/cuemby/gofast/pkg/types"
)

// chain outcomes injected per worker
const (
	outcomeOK = iota
	outcomeProvision
	outcomeConnect
	outcomeSetup
	outcomeStart
)

func TestChainTraceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("every worker follows the lifecycle and ends destroyed", prop.ForAll(
		func(n int, outcomes []int) string {
			prov := newFakeProvider(nil)
			tun := &fakeTunnel{}
			prov.failCreate = make(map[string]error)

			broker := events.NewBroker()
			broker.Start()
			defer broker.Stop()
			traces := &traceRecorder{traces: make(map[string][]types.WorkerStatus)}
			sub := broker.Subscribe(events.EventWorkerTransition)
			go traces.consume(sub)
			defer broker.Unsubscribe(sub)

			var orch *Orchestrator
			byAddress := make(map[string]int)
			connector := &remotetest.Connector{Fail: make(map[string]error)}

			for i := 0; i < n; i++ {
				outcome := outcomeOK
				if i < len(outcomes) {
					outcome = outcomes[i]
				}
				name := fmt.Sprintf("gofast-worker-%d", i+1)
				byAddress[addressOf(name)] = outcome
				switch outcome {
				case outcomeProvision:
					prov.failCreate[name] = errors.New("rejected")
				case outcomeConnect:
					connector.Fail[addressOf(name)] = errors.New("refused")
				}
			}

			connector.NewSession = func(address string) *remotetest.Session {
				s := shutdownOnStart(&orch)(address)
				switch byAddress[address] {
				case outcomeSetup:
					s.RunFunc = func(cmd string) (remote.ExecResult, error) {
						return remote.ExecResult{ExitCode: 1}, &remote.ExecError{Command: cmd, ExitCode: 1}
					}
				case outcomeStart:
					s.StartFunc = func(string) error { return errors.New("no such file") }
				}
				return s
			}

			orch = New(testConfig(n), prov, connector, WithTunnel(tun), WithBroker(broker))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := orch.Run(ctx); err != nil {
				return "run: " + err.Error()
			}

			if live := prov.Live(); live != 0 {
				return fmt.Sprintf("%d instances leaked", live)
			}
			if stops := tun.Stops(); stops != 1 {
				return fmt.Sprintf("tunnel stopped %d times", stops)
			}
			if !orch.Registry().Empty() {
				return "registry not empty"
			}
			for _, w := range orch.Workers() {
				failed := byAddress[addressOf(w.Name)] != outcomeOK
				if failed != (w.Error != "") {
					return fmt.Sprintf("worker %s: error %q does not match injected outcome", w.Name, w.Error)
				}
			}

			deadline := time.Now().Add(2 * time.Second)
			for !traces.finished(n) {
				if time.Now().After(deadline) {
					return fmt.Sprintf("traces incomplete: %v", traces.snapshot())
				}
				time.Sleep(5 * time.Millisecond)
			}
			for _, trace := range traces.snapshot() {
				if err := validTrace(trace); err != nil {
					return err.Error()
				}
			}
			return ""
		},
		gen.IntRange(1, 4),
		gen.SliceOfN(4, gen.IntRange(outcomeOK, outcomeStart)),
	))

	properties.TestingRun(t)
}
