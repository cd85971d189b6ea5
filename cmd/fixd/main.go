// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/fixd/pkg/admin"
	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/fixsession"
	"github.com/dtn7/fixd/pkg/pipeline"
	"github.com/dtn7/fixd/pkg/pipeline/stages"
	"github.com/dtn7/fixd/pkg/store"
	"github.com/dtn7/fixd/pkg/transport"
)

// pipelineHandle satisfies stages.PipelineHandle by indirecting through a
// pointer filled in once the Pipeline is assembled, breaking the
// construction-order cycle between a Pipeline and the stages that need a
// back-reference to it.
type pipelineHandle struct {
	pipe **pipeline.Pipeline
}

func (h *pipelineHandle) Send(msg *fixmsg.Message) error {
	return (*h.pipe).Send(msg)
}

func (h *pipelineHandle) Stop() error {
	return (*h.pipe).Stop()
}

// waitSigint blocks until a SIGINT appears, mirroring cmd/dtnd/main.go.
func waitSigint() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}

func openStore(conf storeConf) (store.MessageStore, error) {
	switch conf.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "badger":
		if conf.Path == "" {
			return nil, fmt.Errorf("store.path is required for the badger driver")
		}
		return store.NewDurableStore(conf.Path)
	default:
		return nil, fmt.Errorf("unknown store.driver %q", conf.Driver)
	}
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}
	configPath := os.Args[1]

	conf, err := parseConfig(configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	st, err := openStore(conf.Store)
	if err != nil {
		log.WithError(err).Fatal("Failed to open message store")
	}

	session := fixsession.New(
		conf.Session.SenderCompID, conf.Session.TargetCompID, conf.Connection.BeginString,
		conf.Session.HeartBtInt, !conf.Session.ResetSeqNums)

	addr := fmt.Sprintf("%s:%d", conf.Connection.Host, conf.Connection.Port)
	tcpClient := transport.NewTCPClient(addr)
	supervisor := transport.NewSupervisor(tcpClient, transport.DefaultBackoffPolicy)

	var pipe *pipeline.Pipeline
	handle := &pipelineHandle{pipe: &pipe}

	clientStage := stages.NewClientSessionStage(supervisor, tcpClient, handle)
	msgStoreStage := stages.NewMessageStoreStage(st, session.ID())
	authStage := stages.NewAuthenticationStage(session, stages.AuthConfig{
		HeartBtInt:           conf.Session.HeartBtInt,
		ResetSeqNumFlag:      conf.Session.ResetSeqNums,
		TestMessageIndicator: conf.Session.TestMode,
	})
	seqStage := stages.NewSeqNumManagerStage(session, st, handle)
	heartbeatStage := stages.NewHeartbeatStage(stages.HeartbeatConfig{
		HeartBtInt:        conf.Session.HeartBtInt,
		MaxLostHeartbeats: conf.Session.MaxLostHeartbeats,
	}, clientStage, handle)

	pipe = pipeline.New(clientStage, msgStoreStage, authStage, seqStage, heartbeatStage)
	pipe.SetApplicationHandler(func(msg *fixmsg.Message) {
		log.WithField("msg_type", msg.MsgType()).Info("Application message delivered")
	})

	if err := supervisor.Connect(session.IsResumed()); err != nil {
		log.WithError(err).Fatal("Failed to connect to counterparty")
	}
	if err := pipe.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start pipeline")
	}

	go readLoop(tcpClient, pipe)

	if conf.Admin.Enabled {
		go runAdmin(conf.Admin, pipe, session, seqStage)
	}

	watcher, err := watchConfig(configPath, heartbeatStage)
	if err != nil {
		log.WithError(err).Warn("Failed to start configuration watcher")
	} else {
		defer watcher.Close()
	}

	logon := fixmsg.NewLogon(conf.Session.HeartBtInt, conf.Session.ResetSeqNums, conf.Session.TestMode)
	if err := pipe.Send(logon); err != nil {
		log.WithError(err).Fatal("Failed to send initial Logon")
	}

	waitSigint()
	log.Info("Shutting down..")

	_ = pipe.Send(fixmsg.NewLogout(""))
	if err := pipe.Stop(); err != nil {
		log.WithError(err).Error("Errors while stopping pipeline")
		os.Exit(1)
	}
}

// readLoop feeds decoded inbound messages into the pipeline until the
// connection is closed, mirroring the reference engine's per-CLA receive
// goroutines. On a SessionError, pipe.Receive has already emitted a Logout
// and stopped every stage (spec.md §7); this loop only needs to stop
// feeding it further messages.
func readLoop(client *transport.TCPClient, pipe *pipeline.Pipeline) {
	for {
		msg, err := client.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("Read loop exiting")
			return
		}
		if err := pipe.Receive(msg); err != nil {
			log.WithError(err).Error("Pipeline stopped processing inbound messages")
			return
		}
	}
}

func runAdmin(conf adminConf, pipe *pipeline.Pipeline, session *fixsession.Session, seqStage *stages.SeqNumManagerStage) {
	srv := admin.NewServer(pipe, session, seqStage.IsSequencingInSync)
	httpServer := &http.Server{
		Addr:    conf.Address,
		Handler: srv.Router(),
	}
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("Admin HTTP server stopped")
	}
}

// watchConfig reloads HEARTBEAT_INT/MAX_LOST_HEARTBEATS on edit without a
// restart (spec.md §6), mirroring the reference engine's fsnotify use in
// cmd/dtn-tool/exchange.go.
func watchConfig(path string, heartbeat *stages.HeartbeatStage) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			conf, err := parseConfig(path)
			if err != nil {
				log.WithError(err).Warn("Failed to reload configuration")
				continue
			}
			heartbeat.UpdateConfig(stages.HeartbeatConfig{
				HeartBtInt:        conf.Session.HeartBtInt,
				MaxLostHeartbeats: conf.Session.MaxLostHeartbeats,
			})
			log.Info("Reloaded heartbeat configuration")
		}
	}()

	return watcher, nil
}
