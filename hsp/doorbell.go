package hsp

import "fmt"

// Doorbell identifies a doorbell channel. Each channel belongs to one
// processing element.
type Doorbell int

const (
	CCPLEXPM          Doorbell = iota // CPU complex, power management
	CCPLEXTZNonSecure                 // CPU complex, TrustZone non-secure
	CCPLEXTZSecure                    // CPU complex, TrustZone secure
	BPMP                              // boot and power management processor
	SPE                               // sensor processing engine
	SCE                               // safety cluster engine
	APE                               // audio processing engine

	minDoorbell = CCPLEXPM
	maxDoorbell = APE
)

// Sender is the bit a processing element owns in a doorbell's pending
// bitmap. The bitmap has a TrustZone secure half and a non-secure half.
type Sender uint32

const (
	SenderCCPLEX Sender = 1 << 1
	SenderDPMU   Sender = 1 << 2
	SenderBPMP   Sender = 1 << 3
	SenderSPE    Sender = 1 << 4
	SenderCPE    Sender = 1 << 5
	SenderSCE           = SenderCPE
	SenderDMA    Sender = 1 << 6
	SenderTSECA  Sender = 1 << 7
	SenderTSECB  Sender = 1 << 8
	SenderJTAGM  Sender = 1 << 9
	SenderCSITE  Sender = 1 << 10
	SenderAPE    Sender = 1 << 11
)

const (
	bitmapSecureShift    = 0
	bitmapNonSecureShift = 16
)

// senders maps each doorbell to the processing element that owns it.
// The CCPLEX channels all share one bit.
var senders = [...]Sender{
	CCPLEXPM:          SenderCCPLEX,
	CCPLEXTZNonSecure: SenderCCPLEX,
	CCPLEXTZSecure:    SenderCCPLEX,
	BPMP:              SenderBPMP,
	SPE:               SenderSPE,
	SCE:               SenderSCE,
	APE:               SenderAPE,
}

var doorbellNames = [...]string{
	CCPLEXPM:          "ccplex-pm",
	CCPLEXTZNonSecure: "ccplex-tz-nonsecure",
	CCPLEXTZSecure:    "ccplex-tz-secure",
	BPMP:              "bpmp",
	SPE:               "spe",
	SCE:               "sce",
	APE:               "ape",
}

// Doorbells returns every valid doorbell in order.
func Doorbells() []Doorbell {
	dd := make([]Doorbell, 0, maxDoorbell-minDoorbell+1)
	for id := minDoorbell; id <= maxDoorbell; id++ {
		dd = append(dd, id)
	}

	return dd
}

// Valid reports whether id is inside the hardware-defined range.
func (id Doorbell) Valid() bool {
	return minDoorbell <= id && id <= maxDoorbell
}

// Sender returns the sender bit of the processing element that owns id.
func (id Doorbell) Sender() (Sender, bool) {
	if id < 0 || int(id) >= len(senders) || senders[id] == 0 {
		return 0, false
	}

	return senders[id], true
}

func (id Doorbell) String() string {
	if id >= 0 && int(id) < len(doorbellNames) && doorbellNames[id] != "" {
		return doorbellNames[id]
	}

	return fmt.Sprintf("Doorbell(%d)", int(id))
}

// ParseDoorbell returns the doorbell with the given name.
func ParseDoorbell(name string) (Doorbell, error) {
	for _, id := range Doorbells() {
		if id.String() == name {
			return id, nil
		}
	}

	return 0, fmt.Errorf("hsp: unknown doorbell %q", name)
}

// Secure returns s's bit in the TrustZone secure half of a pending bitmap.
func (s Sender) Secure() uint32 {
	return uint32(s) << bitmapSecureShift
}

// NonSecure returns s's bit in the non-secure half of a pending bitmap.
func (s Sender) NonSecure() uint32 {
	return uint32(s) << bitmapNonSecureShift
}

func (s Sender) String() string {
	switch s {
	case SenderCCPLEX:
		return "ccplex"

	case SenderDPMU:
		return "dpmu"

	case SenderBPMP:
		return "bpmp"

	case SenderSPE:
		return "spe"

	case SenderCPE:
		return "cpe"

	case SenderDMA:
		return "dma"

	case SenderTSECA:
		return "tseca"

	case SenderTSECB:
		return "tsecb"

	case SenderJTAGM:
		return "jtagm"

	case SenderCSITE:
		return "csite"

	case SenderAPE:
		return "ape"

	default:
		return fmt.Sprintf("Sender(%#x)", uint32(s))
	}
}
