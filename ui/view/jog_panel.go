package view

import (
	"fmt"

	"github.com/soocke/needle-align/domain/actuator"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// JogPanel holds one row per channel: a status label and reverse/forward buttons.
type JogPanel interface {
	SetChannels(enabled, faulted []bool)
	SetManualEnabled(enabled bool)
}

type jogPanel struct {
	status  []*LabelWidget
	buttons []*ButtonWidget
	manual  bool
}

// NewJogPanel builds count rows inside parent. Channels are labelled from 1.
func NewJogPanel(parent *FrameWidget, count int, onJog func(channel int, dir actuator.Direction)) JogPanel {
	p := &jogPanel{manual: true}
	for i := 0; i < count; i++ {
		ch := i
		half := count / 2
		if half == 0 {
			half = count
		}
		row, col := i%half, (i/half)*4
		name := Label(Txt(fmt.Sprintf("Ch %d", i+1)), Width(5))
		status := Label(Txt("off"), Width(7), Relief("groove"))
		rev := Button(Txt("-"), Width(2), Command(func() { onJog(ch, actuator.Reverse) }))
		fwd := Button(Txt("+"), Width(2), Command(func() { onJog(ch, actuator.Forward) }))
		Grid(name, In(parent), Row(row), Column(col), Sticky("w"), Padx("0.2m"))
		Grid(status, In(parent), Row(row), Column(col+1), Sticky("w"), Padx("0.2m"))
		Grid(rev, In(parent), Row(row), Column(col+2), Padx("0.1m"), Pady("0.1m"))
		Grid(fwd, In(parent), Row(row), Column(col+3), Padx("0.1m"), Pady("0.1m"))
		p.status = append(p.status, status)
		p.buttons = append(p.buttons, rev, fwd)
	}
	return p
}

func (p *jogPanel) SetChannels(enabled, faulted []bool) {
	if p == nil {
		return
	}
	for i, lbl := range p.status {
		text := "off"
		switch {
		case i < len(faulted) && faulted[i]:
			text = "fault"
		case i < len(enabled) && enabled[i]:
			text = "auto"
		}
		lbl.Configure(Txt(text))
	}
}

// SetManualEnabled gates the jog buttons; they are disabled during an attempt.
func (p *jogPanel) SetManualEnabled(enabled bool) {
	if p == nil || p.manual == enabled {
		return
	}
	p.manual = enabled
	state := "disabled"
	if enabled {
		state = "normal"
	}
	for _, b := range p.buttons {
		b.Configure(State(state))
	}
}
