// Package asmload parses the ARM-subset assembly text format
// into a frontend.Program the core can run: a flat,
// label-resolved instruction stream plus the initial .data image. The
// core never sees assembly text, only the result of this package.
package asmload

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/arm-ooo/oocpu/frontend"
	"github.com/arm-ooo/oocpu/isa"
)

// UndefinedLabelError reports a branch or variable reference that never
// resolved to a definition (unresolved label is a program
// error, caught here at load time rather than at run time).
type UndefinedLabelError struct {
	Name string
}

func (e *UndefinedLabelError) Error() string {
	return fmt.Sprintf("asmload: undefined label or variable %q", e.Name)
}

// SyntaxError reports a line the parser could not make sense of.
type SyntaxError struct {
	Line int
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("asmload: line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// rawInstr is one parsed-but-not-yet-resolved instruction: operands are
// still raw tokens because labels and variables may be defined later in
// the file.
type rawInstr struct {
	line int
	op   isa.Op
	args []string
}

// Parse reads an assembly source (sections .data / .text) and returns
// a frontend.Program with every label and variable reference resolved
// to an absolute instruction index or data address.
func Parse(src string) (*frontend.Program, error) {
	p := &parser{
		vars:   map[string]uint64{},
		labels: map[string]int{},
	}
	if err := p.scan(src); err != nil {
		return nil, err
	}
	return p.resolve()
}

type parser struct {
	dataWords []uint64
	vars      map[string]uint64 // variable name -> word address in dataWords
	labels    map[string]int    // label name -> resolved instruction index
	raw       []rawInstr
}

// scan performs the first pass: tokenizes lines, records .data variables
// at their word offsets, records label positions against the eventual
// instruction index, and expands push/pop macro-instructions into their
// constituent µops (isa.OpPush/OpPop never reach the core).
func (p *parser) scan(src string) error {
	section := ""
	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := stripComment(sc.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			switch {
			case strings.EqualFold(line, ".data"):
				section = "data"
			case strings.EqualFold(line, ".text"):
				section = "text"
			case strings.HasPrefix(strings.ToLower(line), ".section"):
				// generic section directive, tolerated, not otherwise
				// meaningful in this two-section model.
			default:
				// unrecognised directives are tolerated.
			}
			continue
		}

		switch section {
		case "data":
			if err := p.scanDataLine(lineNo, line); err != nil {
				return err
			}
		case "text":
			if err := p.scanTextLine(lineNo, line); err != nil {
				return err
			}
		default:
			return &SyntaxError{Line: lineNo, Text: line, Msg: "content outside .data/.text section"}
		}
	}
	return sc.Err()
}

// scanDataLine parses "name: .word <int>".
func (p *parser) scanDataLine(lineNo int, line string) error {
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return &SyntaxError{Line: lineNo, Text: line, Msg: "expected 'name: .word <int>'"}
	}
	name = strings.TrimSpace(name)
	rest = strings.TrimSpace(rest)
	fields := strings.Fields(rest)
	if len(fields) != 2 || !strings.EqualFold(fields[0], ".word") {
		return &SyntaxError{Line: lineNo, Text: line, Msg: "expected '.word <int>'"}
	}
	val, err := parseImm(fields[1])
	if err != nil {
		return &SyntaxError{Line: lineNo, Text: line, Msg: "bad .word literal"}
	}
	p.vars[name] = uint64(len(p.dataWords))
	p.dataWords = append(p.dataWords, uint64(val))
	return nil
}

// scanTextLine handles a label definition, a bare label (both forms
// followed by ':'), or an instruction mnemonic plus operands.
func (p *parser) scanTextLine(lineNo int, line string) error {
	if name, rest, ok := strings.Cut(line, ":"); ok {
		name = strings.TrimSpace(name)
		p.labels[name] = len(p.raw)
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return nil
		}
		line = rest
	}

	mnemonic, operandStr, _ := strings.Cut(line, " ")
	op := parseMnemonic(mnemonic)
	if op == isa.OpUnknown {
		return &SyntaxError{Line: lineNo, Text: line, Msg: "unknown mnemonic"}
	}
	args := splitOperands(operandStr)

	switch op {
	case isa.OpPush:
		return p.expandPush(lineNo, args)
	case isa.OpPop:
		return p.expandPop(lineNo, args)
	default:
		p.raw = append(p.raw, rawInstr{line: lineNo, op: op, args: args})
		return nil
	}
}

// expandPush turns "push rX" into "sub sp, sp, #1" + "str rX, [sp]",
// since a single push instruction writes both sp and the core's
// single-destination-per-µop model has no room for a second write
// (isa.OpPush's doc comment).
func (p *parser) expandPush(lineNo int, args []string) error {
	if len(args) != 1 {
		return &SyntaxError{Line: lineNo, Text: "push", Msg: "expected exactly one register operand"}
	}
	p.raw = append(p.raw,
		rawInstr{line: lineNo, op: isa.OpSub, args: []string{"sp", "sp", "#1"}},
		rawInstr{line: lineNo, op: isa.OpStr, args: []string{args[0], "[sp]"}},
	)
	return nil
}

// expandPop turns "pop rX" into "ldr rX, [sp]" + "add sp, sp, #1".
func (p *parser) expandPop(lineNo int, args []string) error {
	if len(args) != 1 {
		return &SyntaxError{Line: lineNo, Text: "pop", Msg: "expected exactly one register operand"}
	}
	p.raw = append(p.raw,
		rawInstr{line: lineNo, op: isa.OpLdr, args: []string{args[0], "[sp]"}},
		rawInstr{line: lineNo, op: isa.OpAdd, args: []string{"sp", "sp", "#1"}},
	)
	return nil
}

// resolve performs the second pass: turns each rawInstr into a fully
// decoded isa.Instruction, resolving label and variable references now
// that every label's final index is known.
func (p *parser) resolve() (*frontend.Program, error) {
	prog := &frontend.Program{DataImage: p.dataWords}
	for idx, r := range p.raw {
		inst, err := p.resolveOne(idx, r)
		if err != nil {
			return nil, err
		}
		prog.Instructions = append(prog.Instructions, inst)
	}
	return prog, nil
}

func (p *parser) resolveOne(idx int, r rawInstr) (isa.Instruction, error) {
	inst := isa.Instruction{Op: r.op, Index: idx}

	if r.op.IsBranch() {
		if len(r.args) != 1 {
			return inst, &SyntaxError{Line: r.line, Text: "branch", Msg: "expected exactly one label operand"}
		}
		target, ok := p.labels[r.args[0]]
		if !ok {
			return inst, &UndefinedLabelError{Name: r.args[0]}
		}
		inst.BranchTarget = target
		if r.op == isa.OpBl {
			// bl writes the return address into lr.
			inst.Dest, inst.HasDest = isa.LR, true
		}
		return inst, nil
	}

	switch r.op {
	case isa.OpMov:
		return p.resolveDestAndOneSrc(inst, r)
	case isa.OpAdd, isa.OpSub, isa.OpMul:
		return p.resolveDestAndTwoSrc(inst, r)
	case isa.OpCmp:
		return p.resolveTwoSrcNoDest(inst, r)
	case isa.OpLdr:
		return p.resolveLoad(inst, r)
	case isa.OpStr:
		return p.resolveStore(inst, r)
	default:
		return inst, &SyntaxError{Line: r.line, Text: r.op.String(), Msg: "unsupported opcode after expansion"}
	}
}

// resolveDestAndOneSrc handles "mov dest, src" where src is a register or
// an immediate (#imm or =variable).
func (p *parser) resolveDestAndOneSrc(inst isa.Instruction, r rawInstr) (isa.Instruction, error) {
	if len(r.args) != 2 {
		return inst, &SyntaxError{Line: r.line, Text: "mov", Msg: "expected 'dest, src'"}
	}
	dest, err := parseReg(r.args[0])
	if err != nil {
		return inst, &SyntaxError{Line: r.line, Text: r.args[0], Msg: err.Error()}
	}
	inst.Dest, inst.HasDest = dest, true
	if err := p.setSrc1(&inst, r); err != nil {
		return inst, err
	}
	return inst, nil
}

// resolveDestAndTwoSrc handles "add dest, src1, src2_or_imm".
func (p *parser) resolveDestAndTwoSrc(inst isa.Instruction, r rawInstr) (isa.Instruction, error) {
	if len(r.args) != 3 {
		return inst, &SyntaxError{Line: r.line, Text: r.op.String(), Msg: "expected 'dest, src1, src2'"}
	}
	dest, err := parseReg(r.args[0])
	if err != nil {
		return inst, &SyntaxError{Line: r.line, Text: r.args[0], Msg: err.Error()}
	}
	inst.Dest, inst.HasDest = dest, true

	src1, err := parseReg(r.args[1])
	if err != nil {
		return inst, &SyntaxError{Line: r.line, Text: r.args[1], Msg: err.Error()}
	}
	inst.Src1, inst.HasSrc1 = src1, true

	return inst, p.setSrc2(&inst, r.line, r.args[2])
}

// resolveTwoSrcNoDest handles "cmp src1, src2_or_imm".
func (p *parser) resolveTwoSrcNoDest(inst isa.Instruction, r rawInstr) (isa.Instruction, error) {
	if len(r.args) != 2 {
		return inst, &SyntaxError{Line: r.line, Text: "cmp", Msg: "expected 'src1, src2'"}
	}
	src1, err := parseReg(r.args[0])
	if err != nil {
		return inst, &SyntaxError{Line: r.line, Text: r.args[0], Msg: err.Error()}
	}
	inst.Src1, inst.HasSrc1 = src1, true
	return inst, p.setSrc2(&inst, r.line, r.args[1])
}

// resolveLoad handles "ldr dest, [base]" / "[base, reg]" / "[base, #imm]"
// / "ldr dest, =variable". The "=variable" form is the same address-load
// pseudo-op mov accepts (setSrc1): it resolves to the variable's address
// as an immediate, not a memory read, so it is rewritten to OpMov.
func (p *parser) resolveLoad(inst isa.Instruction, r rawInstr) (isa.Instruction, error) {
	if len(r.args) != 2 {
		return inst, &SyntaxError{Line: r.line, Text: "ldr", Msg: "expected 'dest, [addr]'"}
	}
	dest, err := parseReg(r.args[0])
	if err != nil {
		return inst, &SyntaxError{Line: r.line, Text: r.args[0], Msg: err.Error()}
	}
	inst.Dest, inst.HasDest = dest, true
	if strings.HasPrefix(r.args[1], "=") {
		inst.Op = isa.OpMov
		if err := p.setSrc1(&inst, r); err != nil {
			return inst, err
		}
		return inst, nil
	}
	return p.resolveAddr(inst, r.line, r.args[1])
}

// resolveStore handles "str value, [base]" / "[base, reg]" /
// "[base, #imm]".
func (p *parser) resolveStore(inst isa.Instruction, r rawInstr) (isa.Instruction, error) {
	if len(r.args) != 2 {
		return inst, &SyntaxError{Line: r.line, Text: "str", Msg: "expected 'value, [addr]'"}
	}
	value, err := parseReg(r.args[0])
	if err != nil {
		return inst, &SyntaxError{Line: r.line, Text: r.args[0], Msg: err.Error()}
	}
	inst.Src3, inst.HasSrc3 = value, true
	return p.resolveAddr(inst, r.line, r.args[1])
}

// resolveAddr fills Src1 (base)/Src2 (offset reg)/Imm (offset literal)
// from a "[reg]", "[reg, reg]" or "[reg, #imm]" operand, following the
// uniform addressing convention isa.Instruction documents.
func (p *parser) resolveAddr(inst isa.Instruction, line int, tok string) (isa.Instruction, error) {
	if !strings.HasPrefix(tok, "[") || !strings.HasSuffix(tok, "]") {
		return inst, &SyntaxError{Line: line, Text: tok, Msg: "expected a '[...]' memory operand"}
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(tok, "["), "]")
	parts := splitOperands(inner)
	if len(parts) == 0 || len(parts) > 2 {
		return inst, &SyntaxError{Line: line, Text: tok, Msg: "expected '[reg]', '[reg, reg]' or '[reg, #imm]'"}
	}
	base, err := parseReg(parts[0])
	if err != nil {
		return inst, &SyntaxError{Line: line, Text: parts[0], Msg: err.Error()}
	}
	inst.Src1, inst.HasSrc1 = base, true
	if len(parts) == 1 {
		inst.HasImm, inst.Imm = true, 0
		return inst, nil
	}
	return inst, p.setSrc2(&inst, line, parts[1])
}

// setSrc1 fills Src1 or Imm for a "dest, src" form where src may be a
// register, an immediate, or a resolved variable address.
func (p *parser) setSrc1(inst *isa.Instruction, r rawInstr) error {
	tok := r.args[1]
	if strings.HasPrefix(tok, "=") {
		addr, ok := p.vars[tok[1:]]
		if !ok {
			return &UndefinedLabelError{Name: tok[1:]}
		}
		inst.HasImm, inst.Imm = true, int64(addr)
		return nil
	}
	if strings.HasPrefix(tok, "#") {
		v, err := parseImm(tok)
		if err != nil {
			return &SyntaxError{Line: r.line, Text: tok, Msg: "bad immediate"}
		}
		inst.HasImm, inst.Imm = true, v
		return nil
	}
	reg, err := parseReg(tok)
	if err != nil {
		return &SyntaxError{Line: r.line, Text: tok, Msg: err.Error()}
	}
	inst.Src1, inst.HasSrc1 = reg, true
	return nil
}

// setSrc2 fills Src2 or Imm from an operand that is either a register or
// an immediate.
func (p *parser) setSrc2(inst *isa.Instruction, line int, tok string) error {
	if strings.HasPrefix(tok, "#") {
		v, err := parseImm(tok)
		if err != nil {
			return &SyntaxError{Line: line, Text: tok, Msg: "bad immediate"}
		}
		inst.HasImm, inst.Imm = true, v
		return nil
	}
	reg, err := parseReg(tok)
	if err != nil {
		return &SyntaxError{Line: line, Text: tok, Msg: err.Error()}
	}
	inst.Src2, inst.HasSrc2 = reg, true
	return nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '@'); i >= 0 {
		return line[:i]
	}
	return line
}

// splitOperands splits on top-level commas only, so a "[reg, #imm]"
// memory operand stays one token.
func splitOperands(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) {
			switch s[i] {
			case '[':
				depth++
			case ']':
				depth--
			}
			if s[i] != ',' || depth > 0 {
				continue
			}
		}
		if f := strings.TrimSpace(s[start:i]); f != "" {
			out = append(out, f)
		}
		start = i + 1
	}
	return out
}

func parseImm(tok string) (int64, error) {
	tok = strings.TrimPrefix(tok, "#")
	return strconv.ParseInt(tok, 0, 64)
}

var regNames = map[string]isa.Reg{
	"r0": isa.R0, "r1": isa.R1, "r2": isa.R2, "r3": isa.R3,
	"r4": isa.R4, "r5": isa.R5, "r6": isa.R6, "r7": isa.R7,
	"r8": isa.R8, "r9": isa.R9, "r10": isa.R10, "r11": isa.R11,
	"r12": isa.R12, "sp": isa.SP, "lr": isa.LR, "pc": isa.PC, "fp": isa.FP,
	"r13": isa.SP, "r14": isa.LR, "r15": isa.PC,
}

func parseReg(tok string) (isa.Reg, error) {
	r, ok := regNames[strings.ToLower(strings.TrimSpace(tok))]
	if !ok {
		return isa.RegNone, fmt.Errorf("not a register")
	}
	return r, nil
}

func parseMnemonic(tok string) isa.Op {
	switch strings.ToLower(strings.TrimSpace(tok)) {
	case "mov":
		return isa.OpMov
	case "ldr":
		return isa.OpLdr
	case "str":
		return isa.OpStr
	case "add":
		return isa.OpAdd
	case "sub":
		return isa.OpSub
	case "mul":
		return isa.OpMul
	case "cmp":
		return isa.OpCmp
	case "b":
		return isa.OpB
	case "beq":
		return isa.OpBeq
	case "bne":
		return isa.OpBne
	case "blt":
		return isa.OpBlt
	case "bgt":
		return isa.OpBgt
	case "bl":
		return isa.OpBl
	case "push":
		return isa.OpPush
	case "pop":
		return isa.OpPop
	default:
		return isa.OpUnknown
	}
}
