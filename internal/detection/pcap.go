package detection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(FrameResult) bool

func (f SubmitFunc) Submit(fr FrameResult) bool { return f(fr) }

// ReplayConfig controls a pcap replay.
type ReplayConfig struct {
	Path    string
	UDPPort int     // only datagrams to this port are replayed; 0 means any
	Speed   float64 // >0 paces frames by capture time divided by Speed; 0 replays as fast as possible
}

// ReplayStats summarises a finished replay.
type ReplayStats struct {
	Packets      int
	Frames       int
	DecodeErrors int
	Rejected     int
	Duration     time.Duration // capture-time span of the replayed frames
}

// ReadPCAPFile replays captured detection datagrams into sink. Frames
// without a sender timestamp are stamped with the capture time.
func ReadPCAPFile(ctx context.Context, cfg ReplayConfig, sink Submitter) (ReplayStats, error) {
	var stats ReplayStats

	f, err := os.Open(cfg.Path)
	if err != nil {
		return stats, fmt.Errorf("failed to open PCAP file %s: %w", cfg.Path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return stats, fmt.Errorf("failed to read PCAP header %s: %w", cfg.Path, err)
	}
	src := gopacket.NewPacketSource(r, r.LinkType())

	var first, prev time.Time
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		packet, err := src.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Truncated captures end mid-record; stop at the last good one.
			monitoring.Logf("[replay] stopping at packet %d: %v", stats.Packets+1, err)
			break
		}
		stats.Packets++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if cfg.UDPPort != 0 && int(udp.DstPort) != cfg.UDPPort {
			continue
		}

		fr, err := Decode(udp.Payload)
		if err != nil {
			stats.DecodeErrors++
			continue
		}
		captured := packet.Metadata().Timestamp
		if fr.At.IsZero() {
			fr.At = captured
		}

		if first.IsZero() {
			first = captured
		}
		if cfg.Speed > 0 && !prev.IsZero() {
			if gap := captured.Sub(prev); gap > 0 {
				select {
				case <-ctx.Done():
					return stats, ctx.Err()
				case <-time.After(time.Duration(float64(gap) / cfg.Speed)):
				}
			}
		}
		prev = captured
		stats.Duration = captured.Sub(first)

		stats.Frames++
		if !sink.Submit(fr) {
			stats.Rejected++
		}
	}

	monitoring.Logf("[replay] %s: %d packets, %d frames, %d decode errors", cfg.Path, stats.Packets, stats.Frames, stats.DecodeErrors)
	return stats, nil
}

// WritePCAP writes frames as UDP datagrams to port into a new pcap file.
// Capture times come from each frame's At.
func WritePCAP(w io.Writer, port int, frames []FrameResult) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}

	eth := &layers.Ethernet{
		SrcMAC:       []byte{0x02, 0, 0, 0, 0, 1},
		DstMAC:       []byte{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    []byte{127, 0, 0, 1},
		DstIP:    []byte{127, 0, 0, 1},
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(port)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	for _, fr := range frames {
		payload, err := Encode(fr)
		if err != nil {
			return err
		}
		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
			return fmt.Errorf("serialize frame: %w", err)
		}
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: fr.At, CaptureLength: len(data), Length: len(data)}
		if err := pw.WritePacket(ci, data); err != nil {
			return err
		}
	}
	return nil
}
