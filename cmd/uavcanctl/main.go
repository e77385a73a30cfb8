// uavcanctl is a small diagnostic client for a UAVCAN transport: it
// loads a transport config, opens the configured media driver, applies
// the configured subject/service subscriptions, and either listens
// (printing every received transfer's raw payload) or sends one
// transfer and exits. Modeled after gocanopen's sdo_client command: flag
// for CLI args, logrus for logging, log.Fatalf on fatal startup errors.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/uavcan-go/govcan/pkg/config"
	"github.com/uavcan-go/govcan/pkg/dtype"
	"github.com/uavcan-go/govcan/pkg/media"
	_ "github.com/uavcan-go/govcan/pkg/media/socketcan"
	_ "github.com/uavcan-go/govcan/pkg/media/virtualcan"
	"github.com/uavcan-go/govcan/pkg/session"
	"github.com/uavcan-go/govcan/pkg/transport"
)

// DefaultConfigPath is where uavcanctl looks for its .ini configuration
// when -config isn't given.
const DefaultConfigPath = "uavcanctl.ini"

func main() {
	log.SetLevel(log.InfoLevel)

	configPath := flag.String("config", DefaultConfigPath, "path to the transport .ini configuration")
	sendSubject := flag.Uint("send-subject", 0, "if >0, send one message to this subject and exit")
	priority := flag.Uint("priority", 16, "transfer priority, 0-31")
	transferID := flag.Uint("tid", 0, "transfer-id, 0-31")
	payloadHex := flag.String("payload", "", "hex-encoded payload for -send-subject")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	newMedia, ok := media.AvailableDrivers[cfg.MediaDriver]
	if !ok {
		log.Fatalf("unknown media driver %q", cfg.MediaDriver)
	}
	m, err := newMedia(cfg.Channel)
	if err != nil {
		log.Fatalf("open media %q on %q: %v", cfg.MediaDriver, cfg.Channel, err)
	}

	tr := transport.New(m, nil)
	defer tr.Close()

	if cfg.LocalNodeID != nil {
		if err := tr.SetLocalNodeID(*cfg.LocalNodeID); err != nil {
			log.Fatalf("set local node-id: %v", err)
		}
	}

	if *sendSubject > 0 {
		sendOnce(tr, uint16(*sendSubject), uint8(*priority), uint8(*transferID), *payloadHex)
		return
	}

	listen(tr, cfg)
}

// sendOnce packs payloadHex's bytes into a raw opaque transfer and sends
// it once to subjectID, then returns.
func sendOnce(tr *transport.Transport, subjectID uint16, priority, transferID uint8, payloadHex string) {
	raw, err := hex.DecodeString(payloadHex)
	if err != nil {
		log.Fatalf("decode -payload: %v", err)
	}

	desc := rawPayloadDescriptor(len(raw))
	out, err := tr.GetBroadcastOutput(session.MessageDataSpecifier(subjectID), desc)
	if err != nil {
		log.Fatalf("get broadcast output: %v", err)
	}
	v, err := bytesToArray(desc, raw)
	if err != nil {
		log.Fatalf("build payload value: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	if err := out.Send(deadline, v, priority, transferID); err != nil {
		log.Fatalf("send: %v", err)
	}
	log.Infof("sent %d bytes to subject %d", len(raw), subjectID)
}

// listen applies cfg's subject/service subscriptions and prints every
// received transfer's payload as hex until interrupted.
func listen(tr *transport.Transport, cfg *config.Config) {
	ctx := context.Background()

	for _, sub := range cfg.Subjects {
		desc := rawPayloadDescriptor(4096)
		var in *transport.InputSession
		var err error
		if sub.Promiscuous {
			in, err = tr.GetPromiscuousInput(session.MessageDataSpecifier(sub.SubjectID), desc)
		} else {
			in, err = tr.GetSelectiveInput(session.MessageDataSpecifier(sub.SubjectID), sub.Source, desc)
		}
		if err != nil {
			log.Fatalf("subscribe subject %d: %v", sub.SubjectID, err)
		}
		go printReceived(ctx, sub.SubjectID, sub.Name, in)
	}

	for _, svc := range cfg.Services {
		desc := rawPayloadDescriptor(4096)
		spec := session.ServiceDataSpecifier(svc.ServiceID, svc.Role)
		var in *transport.InputSession
		var err error
		if svc.Promiscuous {
			in, err = tr.GetPromiscuousInput(spec, desc)
		} else {
			in, err = tr.GetSelectiveInput(spec, svc.Source, desc)
		}
		if err != nil {
			log.Fatalf("subscribe service %d: %v", svc.ServiceID, err)
		}
		go printReceived(ctx, uint16(svc.ServiceID), svc.Name, in)
	}

	log.Infof("listening (%d subjects, %d services), Ctrl-C to stop", len(cfg.Subjects), len(cfg.Services))
	select {}
}

func printReceived(ctx context.Context, id uint16, name string, in *transport.InputSession) {
	for {
		r, err := in.Receive(ctx)
		if err != nil {
			log.Warnf("%s (%d): receive stopped: %v", name, id, err)
			return
		}
		payload, err := arrayBytes(r.Value)
		if err != nil {
			log.Warnf("%s (%d): undecodable payload: %v", name, id, err)
			continue
		}
		log.Infof("%s (%d) from node %d, transfer-id %d: %s", name, id, r.SourceNodeID, r.TransferID, hex.EncodeToString(payload))
	}
}

func rawPayloadDescriptor(maxSize int) *dtype.Descriptor {
	elem := dtype.Primitive(dtype.PrimitiveUint, 8, dtype.CastSaturated, dtype.Range{Min: 0, Max: 255})
	return dtype.Array(dtype.ArrayDynamic, elem, maxSize)
}

func bytesToArray(desc *dtype.Descriptor, raw []byte) (*dtype.Value, error) {
	v := dtype.NewValue(desc)
	if err := v.SetString(string(raw)); err != nil {
		return nil, err
	}
	return v, nil
}

func arrayBytes(v *dtype.Value) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	s, err := v.GetString()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
