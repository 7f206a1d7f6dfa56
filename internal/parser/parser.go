// Package parser implements the SCXML document reader (C2, spec.md §4.2):
// turning an XML byte stream into a primitives.Document arena, with every
// state, transition, and <data> element tagged with its source line and
// column for diagnostics. Executable-content elements are not tagged:
// their Pos() is the zero Position.
//
// It streams tokens from stdlib encoding/xml's Decoder rather than loading
// a DOM. SCXML's <state id="..." document_order> assignment and
// line/column diagnostics both need a stable read-as-you-go token
// position, which a DOM tree (as agentflare-ai/go-xmldom builds) discards
// once parsing completes; encoding/xml's Decoder.InputPos is the only
// option in the example pack that keeps that information. No third-party SAX-style streaming XML
// library appears anywhere in the retrieved examples, so this is the one
// place the engine reaches for the standard library by necessity rather
// than by default.
package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/comalice/scxml/internal/primitives"
)

// ParseError reports a malformed document with its source position.
type ParseError struct {
	Pos primitives.Position
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scxml: parse error at %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// SCXMLNamespace is the default xmlns supplied when the root <scxml>
// element doesn't declare one (spec.md:86).
const SCXMLNamespace = "http://www.w3.org/2005/07/scxml"

// Parse reads a complete SCXML document from r and returns its arena
// Document, unvalidated: state IDs are indexed (ByID is populated as a
// convenience) but Transition.Targets/State.Initial/Document.Initial are
// left unresolved (TargetIDs/InitialIDs only) pending internal/validator.
func Parse(r io.Reader) (*primitives.Document, error) {
	dec := xml.NewDecoder(r)
	p := &docParser{dec: dec, doc: &primitives.Document{ByID: map[string]primitives.StateIndex{}}}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

type frame struct {
	state     *primitives.State // nil while positioned in executable content outside a state
	content   *[]primitives.ExecutableContent
	ifStack   []*primitives.If
	send      *primitives.Send
	invoke    *primitives.Invoke
	charDest  *string // non-nil inside <data>/<content>: where CharData text accumulates
	isInitial bool    // inside <initial>: its one <transition> sets the parent's default entry
	doneData  *primitives.DoneData
}

type docParser struct {
	dec *xml.Decoder
	doc *primitives.Document

	stack []frame
	root  *primitives.State
}

func (p *docParser) pos() primitives.Position {
	// InputPos reports the 1-based line and column just past the most
	// recently returned token.
	line, col := p.dec.InputPos()
	return primitives.Position{Line: line, Column: col}
}

func (p *docParser) top() *frame {
	if len(p.stack) == 0 {
		return nil
	}
	return &p.stack[len(p.stack)-1]
}

func (p *docParser) run() error {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ParseError{Pos: p.pos(), Msg: err.Error()}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.startElement(t); err != nil {
				return err
			}
		case xml.EndElement:
			if err := p.endElement(t); err != nil {
				return err
			}
		case xml.CharData:
			p.charData(string(t))
		}
	}
	if p.root == nil {
		return &ParseError{Pos: primitives.Position{}, Msg: "no <scxml> root element found"}
	}
	return nil
}

func localName(name xml.Name) string { return name.Local }

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (p *docParser) nextOrder() int { return len(p.doc.States) }

func (p *docParser) newState(kind primitives.StateKind, id string, pos primitives.Position) *primitives.State {
	parent := primitives.NoState
	depth := 0
	if p.root != nil {
		for i := len(p.stack) - 1; i >= 0; i-- {
			if p.stack[i].state != nil {
				parent = p.stack[i].state.Index
				depth = p.stack[i].state.Depth + 1
				break
			}
		}
	}
	s := &primitives.State{
		Index:         primitives.StateIndex(len(p.doc.States)),
		ID:            id,
		Kind:          kind,
		Parent:        parent,
		DocumentOrder: p.nextOrder(),
		Depth:         depth,
		Position:      pos,
	}
	p.doc.States = append(p.doc.States, s)
	if id != "" {
		p.doc.ByID[id] = s.Index
	}
	if parent != primitives.NoState {
		ps := p.doc.MustState(parent)
		ps.Children = append(ps.Children, s.Index)
	}
	return s
}

func (p *docParser) currentContentSink() *[]primitives.ExecutableContent {
	for i := len(p.stack) - 1; i >= 0; i-- {
		f := &p.stack[i]
		if f.content != nil {
			return f.content
		}
	}
	return nil
}

func (p *docParser) appendContent(ec primitives.ExecutableContent) {
	if len(p.stack) > 0 && len(p.stack[len(p.stack)-1].ifStack) > 0 {
		ifs := p.stack[len(p.stack)-1].ifStack
		cur := ifs[len(ifs)-1]
		last := &cur.Branches[len(cur.Branches)-1]
		last.Body = append(last.Body, ec)
		return
	}
	if sink := p.currentContentSink(); sink != nil {
		*sink = append(*sink, ec)
	}
}

func splitTokens(s string) []string {
	return strings.Fields(s)
}

func (p *docParser) startElement(se xml.StartElement) error {
	pos := p.pos()
	switch localName(se.Name) {
	case "scxml":
		root := &primitives.State{Index: 0, ID: "", Kind: primitives.KindCompound, Parent: primitives.NoState, DocumentOrder: 0, Depth: 0, Position: pos}
		p.doc.States = append(p.doc.States, root)
		p.root = root
		p.doc.Root = 0
		if v, ok := attr(se, "name"); ok {
			p.doc.Name = v
		}
		if v, ok := attr(se, "version"); ok {
			p.doc.Version = v
		} else {
			p.doc.Version = "1.0"
		}
		if v, ok := attr(se, "xmlns"); ok {
			p.doc.XMLNS = v
		} else {
			p.doc.XMLNS = SCXMLNamespace
		}
		if v, ok := attr(se, "binding"); ok && v == "late" {
			p.doc.Binding = primitives.BindingLate
		}
		if v, ok := attr(se, "initial"); ok {
			p.doc.InitialIDs = splitTokens(v)
		}
		p.stack = append(p.stack, frame{state: root})

	case "state", "parallel", "final":
		kind := primitives.KindCompound
		if localName(se.Name) == "parallel" {
			kind = primitives.KindParallel
		} else if localName(se.Name) == "final" {
			kind = primitives.KindFinal
		}
		id, _ := attr(se, "id")
		st := p.newState(kind, id, pos)
		if v, ok := attr(se, "initial"); ok {
			st.InitialIDs = splitTokens(v)
		}
		p.stack = append(p.stack, frame{state: st})

	case "history":
		id, _ := attr(se, "id")
		kind := primitives.KindHistoryShallow
		if v, ok := attr(se, "type"); ok && v == "deep" {
			kind = primitives.KindHistoryDeep
		}
		st := p.newState(kind, id, pos)
		p.stack = append(p.stack, frame{state: st})

	case "initial":
		// <initial> has no id of its own; it contributes a single nested
		// <transition> whose targets become the parent's InitialIDs.
		p.stack = append(p.stack, frame{isInitial: true})

	case "transition":
		tr := &primitives.Transition{Source: p.currentStateIndex(), DocumentOrder: p.nextOrder(), Position: pos}
		if v, ok := attr(se, "event"); ok {
			for _, tok := range splitTokens(v) {
				tr.Events = append(tr.Events, primitives.EventDescriptor(tok))
			}
		}
		if v, ok := attr(se, "cond"); ok {
			tr.Cond = v
		}
		if v, ok := attr(se, "target"); ok {
			tr.TargetIDs = splitTokens(v)
		}
		if v, ok := attr(se, "type"); ok && v == "internal" {
			tr.Kind = primitives.Internal
		}
		switch {
		case p.top() != nil && p.top().isInitial:
			// <state><initial><transition target="..."/></initial></state>:
			// the enclosing <state>/<parallel> is one frame further down.
			if len(p.stack) >= 2 {
				if parent := p.stack[len(p.stack)-2].state; parent != nil {
					parent.InitialIDs = tr.TargetIDs
				}
			}
		case p.currentState() != nil && p.currentState().Kind.IsHistory():
			p.currentState().HistoryDefault = tr
		default:
			if st := p.currentState(); st != nil {
				st.Transitions = append(st.Transitions, tr)
			}
		}
		p.stack = append(p.stack, frame{content: &tr.Actions})

	case "onentry":
		st := p.currentState()
		block := &[]primitives.ExecutableContent{}
		if st != nil {
			st.OnEntry = append(st.OnEntry, nil) // placeholder, filled on pop
		}
		p.stack = append(p.stack, frame{content: block})

	case "onexit":
		st := p.currentState()
		block := &[]primitives.ExecutableContent{}
		if st != nil {
			st.OnExit = append(st.OnExit, nil)
		}
		p.stack = append(p.stack, frame{content: block})

	case "datamodel":
		p.stack = append(p.stack, frame{})

	case "data":
		id, _ := attr(se, "id")
		de := primitives.DataElement{ID: id, Position: pos}
		if v, ok := attr(se, "expr"); ok {
			de.Expr = v
		}
		var dest *string
		if st := p.currentState(); st != nil {
			st.DataElements = append(st.DataElements, de)
			dest = &st.DataElements[len(st.DataElements)-1].Content
		}
		p.stack = append(p.stack, frame{charDest: dest})

	case "log":
		l := &primitives.Log{}
		if v, ok := attr(se, "label"); ok {
			l.Label = v
		}
		if v, ok := attr(se, "expr"); ok {
			l.Expr = v
		}
		p.appendContent(l)

	case "raise":
		r := &primitives.Raise{}
		if v, ok := attr(se, "event"); ok {
			r.Event = v
		}
		p.appendContent(r)

	case "assign":
		a := &primitives.Assign{}
		if v, ok := attr(se, "location"); ok {
			a.Location = v
		}
		if v, ok := attr(se, "expr"); ok {
			a.Expr = v
		}
		p.appendContent(a)

	case "if":
		ifc := &primitives.If{}
		cond, _ := attr(se, "cond")
		ifc.Branches = append(ifc.Branches, primitives.IfBranch{Cond: cond})
		p.appendContent(ifc)
		top := p.top()
		top.ifStack = append(top.ifStack, ifc)

	case "elseif":
		top := p.top()
		cond, _ := attr(se, "cond")
		cur := top.ifStack[len(top.ifStack)-1]
		cur.Branches = append(cur.Branches, primitives.IfBranch{Cond: cond})

	case "else":
		top := p.top()
		cur := top.ifStack[len(top.ifStack)-1]
		cur.Branches = append(cur.Branches, primitives.IfBranch{Cond: ""})

	case "send":
		s := &primitives.Send{DocumentOrder: p.nextOrder()}
		if v, ok := attr(se, "event"); ok {
			s.Event = v
		}
		if v, ok := attr(se, "eventexpr"); ok {
			s.EventExpr = v
		}
		if v, ok := attr(se, "target"); ok {
			s.Target = v
		}
		if v, ok := attr(se, "targetexpr"); ok {
			s.TargetExpr = v
		}
		if v, ok := attr(se, "type"); ok {
			s.Type = v
		}
		if v, ok := attr(se, "typeexpr"); ok {
			s.TypeExpr = v
		}
		if v, ok := attr(se, "id"); ok {
			s.ID = v
		}
		if v, ok := attr(se, "idlocation"); ok {
			s.IDLocation = v
		}
		if v, ok := attr(se, "delay"); ok {
			s.Delay = v
		}
		if v, ok := attr(se, "delayexpr"); ok {
			s.DelayExpr = v
		}
		if v, ok := attr(se, "namelist"); ok {
			s.Namelist = splitTokens(v)
		}
		p.appendContent(s)
		p.stack = append(p.stack, frame{send: s})

	case "cancel":
		c := &primitives.Cancel{}
		if v, ok := attr(se, "sendid"); ok {
			c.SendID = v
		}
		if v, ok := attr(se, "sendidexpr"); ok {
			c.SendIDExpr = v
		}
		p.appendContent(c)

	case "invoke":
		inv := &primitives.Invoke{}
		if v, ok := attr(se, "type"); ok {
			inv.Type = v
		}
		if v, ok := attr(se, "typeexpr"); ok {
			inv.TypeExpr = v
		}
		if v, ok := attr(se, "src"); ok {
			inv.Src = v
		}
		if v, ok := attr(se, "srcexpr"); ok {
			inv.SrcExpr = v
		}
		if v, ok := attr(se, "id"); ok {
			inv.ID = v
		}
		if v, ok := attr(se, "idlocation"); ok {
			inv.IDLocation = v
		}
		if v, ok := attr(se, "autoforward"); ok {
			inv.Autoforward = v == "true"
		}
		if v, ok := attr(se, "namelist"); ok {
			inv.Namelist = splitTokens(v)
		}
		if st := p.currentState(); st != nil {
			st.Invokes = append(st.Invokes, inv)
		}
		p.stack = append(p.stack, frame{invoke: inv})

	case "donedata":
		var dd *primitives.DoneData
		if st := p.currentState(); st != nil {
			st.DoneData = &primitives.DoneData{}
			dd = st.DoneData
		}
		p.stack = append(p.stack, frame{doneData: dd})

	case "finalize":
		// Actions appended inside land directly in Invoke.Finalize via a
		// dedicated sink frame.
		if inv := p.currentInvoke(); inv != nil {
			p.stack = append(p.stack, frame{content: &inv.Finalize})
		} else {
			p.stack = append(p.stack, frame{})
		}

	case "param":
		name, _ := attr(se, "name")
		pr := primitives.Param{Name: name}
		if v, ok := attr(se, "expr"); ok {
			pr.Expr = v
		}
		if v, ok := attr(se, "location"); ok {
			pr.Location = v
		}
		switch {
		case p.currentDoneData() != nil:
			dd := p.currentDoneData()
			dd.Params = append(dd.Params, pr)
		case p.currentSend() != nil:
			p.currentSend().Params = append(p.currentSend().Params, pr)
		case p.currentInvoke() != nil:
			p.currentInvoke().Params = append(p.currentInvoke().Params, pr)
		}
		p.stack = append(p.stack, frame{})

	case "content":
		c := &primitives.Content{}
		if v, ok := attr(se, "expr"); ok {
			c.Expr = v
		}
		switch {
		case p.currentDoneData() != nil:
			p.currentDoneData().Content = c
		case p.currentSend() != nil:
			p.currentSend().Content = c
		case p.currentInvoke() != nil:
			p.currentInvoke().Content = c
		}
		p.stack = append(p.stack, frame{charDest: &c.Literal})

	default:
		// Unknown elements (including platform-specific <invoke> content)
		// are skipped structurally but still balance the element stack.
		p.stack = append(p.stack, frame{})
	}
	return nil
}

func (p *docParser) currentStateIndex() primitives.StateIndex {
	if st := p.currentState(); st != nil {
		return st.Index
	}
	return primitives.NoState
}

func (p *docParser) currentState() *primitives.State {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].state != nil {
			return p.stack[i].state
		}
	}
	return nil
}

func (p *docParser) currentSend() *primitives.Send {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].send != nil {
			return p.stack[i].send
		}
	}
	return nil
}

func (p *docParser) currentInvoke() *primitives.Invoke {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].invoke != nil {
			return p.stack[i].invoke
		}
	}
	return nil
}

func (p *docParser) currentDoneData() *primitives.DoneData {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].doneData != nil {
			return p.stack[i].doneData
		}
	}
	return nil
}

func (p *docParser) charData(s string) {
	top := p.top()
	if top == nil || top.charDest == nil {
		return
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return
	}
	*top.charDest += trimmed
}

func (p *docParser) endElement(ee xml.EndElement) error {
	name := localName(ee.Name)
	switch name {
	case "log", "raise", "assign", "cancel", "elseif", "else":
		// startElement pushes no frame for these.
		return nil
	case "if":
		// <if> pushed onto the enclosing frame's ifStack, not a frame.
		if top := p.top(); top != nil && len(top.ifStack) > 0 {
			top.ifStack = top.ifStack[:len(top.ifStack)-1]
		}
		return nil
	}
	if len(p.stack) == 0 {
		return &ParseError{Pos: p.pos(), Msg: "unbalanced end element </" + name + ">"}
	}
	f := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]

	switch name {
	case "onentry":
		if st := p.currentState(); st != nil {
			st.OnEntry[len(st.OnEntry)-1] = *f.content
		}
	case "onexit":
		if st := p.currentState(); st != nil {
			st.OnExit[len(st.OnExit)-1] = *f.content
		}
	case "transition":
		// nothing further: actions already accumulated into f.content,
		// which aliases the transition's own Actions slice.
	case "state":
		// A <state> with no child states is atomic.
		if f.state != nil && len(f.state.Children) == 0 {
			f.state.Kind = primitives.KindAtomic
		}
	case "parallel", "final", "history":
		// state fully parsed, nothing to propagate upward
	}
	return nil
}
