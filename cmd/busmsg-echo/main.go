// busmsg-echo runs two nodes on an in-memory bus: a responder that
// echoes every frame it receives, and a requester that sends a batch of
// echo requests and waits for the replies. It exists to exercise the
// full path — staging, transmission, framing, allocation, routing,
// delivery — and to print the allocator statistics afterwards.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	busmsg "github.com/ehrlich-b/go-busmsg"
	"github.com/ehrlich-b/go-busmsg/phy/loopback"
	"github.com/ehrlich-b/go-busmsg/wire"
)

const (
	requesterID = 1
	responderID = 2
	epTypeEcho  = 7
)

var (
	flagFrames  int
	flagPayload int
	flagBuffer  int
	flagTasks   int
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "busmsg-echo",
	Short: "Exchange echo frames between two nodes on an in-memory bus",
	RunE:  run,
}

func init() {
	rootCmd.Flags().IntVar(&flagFrames, "frames", 16, "number of echo requests to send")
	rootCmd.Flags().IntVar(&flagPayload, "payload", 8, "payload bytes per request")
	rootCmd.Flags().IntVar(&flagBuffer, "buffer", busmsg.DefaultBufferSize, "message buffer size in bytes")
	rootCmd.Flags().IntVar(&flagTasks, "tasks", busmsg.DefaultMaxTasks, "task stack capacity")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// zapLogger adapts a zap sugared logger to the busmsg Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Printf(format string, args ...interface{}) {
	l.s.Infof(format, args...)
}

func (l zapLogger) Debugf(format string, args ...interface{}) {
	l.s.Debugf(format, args...)
}

func run(cmd *cobra.Command, args []string) error {
	if flagPayload > busmsg.MaxDataSize {
		return fmt.Errorf("payload %d exceeds limit %d", flagPayload, busmsg.MaxDataSize)
	}

	zcfg := zap.NewDevelopmentConfig()
	if !flagVerbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zl, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer zl.Sync()

	metrics := busmsg.NewMetrics()
	params := busmsg.Params{
		BufferSize: flagBuffer,
		MaxTasks:   flagTasks,
		Logger:     zapLogger{zl.Sugar()},
		Observer:   metrics,
	}

	bus := loopback.NewBus()
	defer bus.Close()

	reqPort := bus.NewPort()
	respPort := bus.NewPort()

	requester, err := busmsg.NewNode(reqPort, params)
	if err != nil {
		return err
	}
	responder, err := busmsg.NewNode(respPort, params)
	if err != nil {
		return err
	}

	reqEP, err := requester.NewEndpoint(requesterID, epTypeEcho)
	if err != nil {
		return err
	}
	respEP, err := responder.NewEndpoint(responderID, epTypeEcho)
	if err != nil {
		return err
	}

	payload := make([]byte, flagPayload)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	zl.Sugar().Infof("sending %d echo requests of %d bytes", flagFrames, flagPayload)

	replies := 0
	sent := 0
	// Bounded: replies can stop arriving when an undersized buffer
	// evicts them; the drop counter tells that story at the end.
	for tick := 0; replies < flagFrames && tick < flagFrames*64; tick++ {
		if sent < flagFrames {
			if err := reqEP.Send(responderID, wire.IDMode, wire.CmdEcho, payload); err != nil {
				return err
			}
			sent++
		}

		// One round trip per tick pair keeps the tiny default buffer
		// from evicting unread replies.
		if err := requester.Loop(); err != nil {
			return err
		}
		respPort.Drain()
		if err := responder.Loop(); err != nil {
			return err
		}

		for {
			in, err := respEP.Receive()
			if err != nil {
				break
			}
			if in.Header.Cmd == wire.CmdEcho {
				err = respEP.Send(in.Header.Source, wire.IDMode, wire.CmdEchoReply, in.Payload)
			}
			in.Release()
			if err != nil {
				return err
			}
		}
		if err := responder.Loop(); err != nil {
			return err
		}
		reqPort.Drain()
		if err := requester.Loop(); err != nil {
			return err
		}

		for {
			in, err := reqEP.Receive()
			if err != nil {
				break
			}
			if in.Header.Cmd == wire.CmdEchoReply {
				replies++
				if flagVerbose {
					zl.Sugar().Debugf("reply %d: %q", replies, in.Payload)
				}
			}
			in.Release()
		}
	}

	snap := metrics.Snapshot()
	stats := requester.Stats()
	zl.Sugar().Infow("done",
		"replies", replies,
		"rx_frames", snap.RxFrames,
		"tx_frames", snap.TxFrames,
		"rx_bytes", snap.RxBytes,
		"drops", snap.Drops,
		"msg_watermark_pct", stats.MsgStackRatio,
		"delivery_watermark_pct", stats.DeliveryStackRatio,
	)
	return nil
}
