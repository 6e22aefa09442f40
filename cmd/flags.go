package cmd

import (
	"github.com/spf13/pflag"

	"firestige.xyz/flowkey/internal/core/wire"
)

// packetTypeFlag is a --packet-type value, checked when flags are parsed.
type packetTypeFlag struct {
	pt  wire.PacketType
	set bool
}

var _ pflag.Value = (*packetTypeFlag)(nil)

func (f *packetTypeFlag) String() string {
	if !f.set {
		return ""
	}
	return f.pt.String()
}

func (f *packetTypeFlag) Set(s string) error {
	pt, err := wire.ParsePacketType(s)
	if err != nil {
		return err
	}
	f.pt, f.set = pt, true
	return nil
}

func (f *packetTypeFlag) Type() string { return "packet-type" }

// resolve returns the flag value when given, else def.
func (f *packetTypeFlag) resolve(def wire.PacketType) (wire.PacketType, bool) {
	if f.set {
		return f.pt, true
	}
	return def, false
}
