// Command node runs one neighbourhood-scheduler node: an Actor-Manager,
// a Reward-Calculator, and (optionally) a local or global Grid, wired
// over either an in-process transport or a WebSocket peering link.
//
// Flags follow the original CoSSMic trial runner's --domain/--PeerEndpoint/
// --localgrid/--globalgrid surface (original_source/simulator/CoSSMic/
// Tests/Trial.cpp), adapted to this redesign's actor-address space
// rather than Jabber IDs. Flag parsing itself stays outside the
// modelled system (spec.md §1's non-goal); this is just enough to make
// the executable runnable, in the teacher's cmd/server/main.go shape.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"cossmic/internal/actor"
	"cossmic/internal/actormanager"
	"cossmic/internal/clock"
	"cossmic/internal/config"
	"cossmic/internal/grid"
	"cossmic/internal/id"
	"cossmic/internal/logging"
	"cossmic/internal/reward"
	"cossmic/internal/store"
	"cossmic/internal/transport"
	"cossmic/internal/wire"
)

func main() {
	name := flag.String("name", "node", "this node's name, used for logging and as the reward-calculator domain when --domain is empty")
	domain := flag.String("domain", "", "reward-calculator domain; defaults to --name")
	peerEndpoint := flag.String("PeerEndpoint", "", "ws:// URL of an already-running peer node to dial on startup")
	listen := flag.String("listen", "", "address to accept inbound peer-node connections on (e.g. :7000); empty disables inbound peering")
	localgrid := flag.String("localgrid", "", "household:device id of a local Grid producer to start on this node (empty disables)")
	globalgrid := flag.Bool("globalgrid", false, "start the reserved global Grid actor (id 0:0) on this node")
	password := flag.String("password", "", "unused; kept for parity with the original network-authentication flag, this transport has none")
	simulator := flag.String("simulator", "", "URL of an external simulator clock to poll instead of the wall clock")
	probabilitiesDir := flag.String("probabilities-dir", config.Default().ProbabilitiesDirectory(), "directory consumer learning-automaton probabilities persist to")
	rewardLog := flag.String("reward-log", config.Default().RewardLogPath(), "append-only CSV path the reward calculator logs to")
	flag.Parse()
	_ = *password

	log := logging.New(*name)
	if *domain == "" {
		*domain = *name
	}

	var clk clock.Clock = clock.System{}
	if *simulator != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		sc, err := clock.NewSimulator(ctx, *simulator)
		cancel()
		if err != nil {
			log.Fatalf("simulator clock: %v", err)
		}
		clk = sc
	}

	sys := actor.NewSystem()
	local := transport.NewLocal(sys)
	ws := transport.NewWS(local)
	var tr transport.Transport = ws

	if *listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/peer", ws.ServeHTTP(*listen))
		go func() {
			log.Printf("accepting peer connections on %s", *listen)
			if err := http.ListenAndServe(*listen, mux); err != nil {
				log.Fatalf("peer listener: %v", err)
			}
		}()
	}

	if *peerEndpoint != "" {
		conn, _, err := websocket.DefaultDialer.Dial(*peerEndpoint, nil)
		if err != nil {
			log.Fatalf("dialing peer %s: %v", *peerEndpoint, err)
		}
		ws.RegisterPeer(*peerEndpoint, conn)
		log.Printf("connected to peer %s", *peerEndpoint)
	}

	cfg := config.Default()
	cfg.SetProbabilitiesDirectory(*probabilitiesDir)
	cfg.SetRewardLogPath(*rewardLog)

	persist, err := store.New(cfg.ProbabilitiesDirectory())
	if err != nil {
		log.Fatalf("probabilities store: %v", err)
	}

	tm := newTaskManagerNotifier(log)
	rewardCalc, _ := reward.Spawn(sys, id.RewardCalculatorAddress(*domain), id.AddressActorManager, tr, clk, id.Grid, cfg.RewardLogPath())
	actormanager.Spawn(sys, id.AddressActorManager, id.AddressTaskManager, tr, clk, cfg, persist, tm, rewardCalc)

	if *globalgrid {
		grid.Spawn(sys, id.GridAddress(id.Grid), tr)
		log.Printf("global grid started at %s", id.GridAddress(id.Grid))
	}
	if *localgrid != "" {
		gridID, err := id.Parse(*localgrid)
		if err != nil {
			log.Fatalf("--localgrid: %v", err)
		}
		grid.Spawn(sys, id.GridAddress(gridID), tr)
		log.Printf("local grid %s started at %s", gridID, id.GridAddress(gridID))
	}

	log.Printf("node %q ready (actor-manager=%s, reward-calculator=%s)", *name, id.AddressActorManager, rewardCalc.Address())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("shutdown requested")
	rewardCalc.ShutDown()
	tr.Send(id.AddressTaskManager, id.AddressActorManager, wire.EncodeBodyless(wire.TagShutdown))

	select {
	case <-tm.done:
	case <-time.After(10 * time.Second):
		log.Printf("shutdown timed out waiting for the actor-manager")
	}
}
