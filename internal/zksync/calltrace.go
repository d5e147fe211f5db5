package zksync

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TraceFrame is the printable view of a computation node.
type TraceFrame struct {
	Depth        int
	Address      common.Address
	ContractName string
	Type         string
	Err          *VMError
	Children     []*TraceFrame
}

// CallTrace renders the computation and its children as trace frames.
func (c *Computation) CallTrace() *TraceFrame {
	return c.callTrace(0)
}

func (c *Computation) callTrace(depth int) *TraceFrame {
	name, ok := c.ContractName()
	if !ok {
		name = fmt.Sprintf("<Unknown contract %s>", c.Msg.To.Hex())
	}

	children := make([]*TraceFrame, 0, len(c.Children))
	for _, child := range c.Children {
		children = append(children, child.callTrace(depth+1))
	}

	return &TraceFrame{
		Depth:        depth,
		Address:      c.Msg.To,
		ContractName: name,
		Type:         c.Type,
		Err:          c.Err,
		Children:     children,
	}
}

// Line renders the frame on one line, without indentation.
func (f *TraceFrame) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", f.Type, f.ContractName)
	if !strings.HasPrefix(f.ContractName, "<Unknown") {
		fmt.Fprintf(&b, " (%s)", f.Address.Hex())
	}
	if f.Err != nil {
		fmt.Fprintf(&b, " [E] %s", f.Err)
	}
	return b.String()
}

func (f *TraceFrame) String() string {
	var b strings.Builder
	f.write(&b)
	return strings.TrimSuffix(b.String(), "\n")
}

func (f *TraceFrame) write(b *strings.Builder) {
	b.WriteString(strings.Repeat("  ", f.Depth))
	b.WriteString(f.Line())
	b.WriteByte('\n')
	for _, child := range f.Children {
		child.write(b)
	}
}

// StackTrace lists the frames on the failing path, innermost first.
type StackTrace []*TraceFrame

func (s StackTrace) String() string {
	lines := make([]string, 0, len(s))
	for _, frame := range s {
		lines = append(lines, frame.Line())
	}
	return strings.Join(lines, "\n")
}

// StackTrace follows the first failing child at every level. It is empty
// when the computation succeeded.
func (c *Computation) StackTrace() StackTrace {
	if c.IsSuccess() {
		return nil
	}

	var path []*TraceFrame
	for frame := c.CallTrace(); frame != nil; {
		path = append(path, frame)

		var next *TraceFrame
		for _, child := range frame.Children {
			if child.Err != nil {
				next = child
				break
			}
		}
		frame = next
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path
}
