package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rotisserie/eris"

	"github.com/Lllllllleong/pdfformfiller/internal/form"
)

// Field flag bits (PDF 32000-1, table 226 and 230), zero-based.
const (
	flagRadio      = 1 << 15
	flagPushButton = 1 << 16
	flagCombo      = 1 << 17

	maxTreeDepth = 64
)

// Engine opens PDFs with pdfcpu for field extraction and synthesis.
type Engine struct {
	policy DuplicatePolicy
}

func NewEngine(policy DuplicatePolicy) *Engine {
	if policy == "" {
		policy = PolicyCollapse
	}
	return &Engine{policy: policy}
}

// ExtractFields lists the logical form fields of the PDF at path in page
// order. A document without an interactive form yields no fields.
func (e *Engine) ExtractFields(path string) ([]FieldInfo, error) {
	doc, err := e.open(path)
	if err != nil {
		return nil, err
	}
	widgets, err := doc.Widgets()
	if err != nil {
		return nil, err
	}
	return collectFields(widgets), nil
}

func (e *Engine) Open(path string) (Document, error) {
	return e.open(path)
}

func (e *Engine) open(path string) (*pdfcpuDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pdf: open %s", path)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: read context")
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, eris.Wrap(err, "pdf: page count")
	}

	doc := &pdfcpuDocument{
		ctx:      ctx,
		policy:   e.policy,
		ops:      make(map[int]*bytes.Buffer),
		deleted:  make(map[int]map[int]bool),
		fontRefs: make(map[string]types.IndirectRef),
	}
	if err := doc.load(); err != nil {
		return nil, err
	}
	return doc, nil
}

type pageEntry struct {
	dict types.Dict
	// resources in effect for the page, possibly inherited from the tree.
	resources types.Dict
}

type widgetEntry struct {
	page  int
	index int
	annot types.Dict
	// field is the dictionary carrying the field's value: the nearest
	// ancestor-or-self with a partial name.
	field types.Dict
}

type pdfcpuDocument struct {
	ctx      *model.Context
	policy   DuplicatePolicy
	pages    []pageEntry
	widgets  []Widget
	entries  []widgetEntry
	ops      map[int]*bytes.Buffer
	deleted  map[int]map[int]bool
	fontRefs map[string]types.IndirectRef
}

func (d *pdfcpuDocument) load() error {
	root, err := d.ctx.Catalog()
	if err != nil {
		return eris.Wrap(err, "pdf: catalog")
	}
	pagesObj, found := root.Find("Pages")
	if !found {
		return errors.New("pdf: catalog has no page tree")
	}
	if err := d.walkPages(pagesObj, nil, 0); err != nil {
		return err
	}
	if len(d.pages) == 0 {
		return errors.New("pdf: document has no pages")
	}
	return d.scanWidgets()
}

func (d *pdfcpuDocument) walkPages(obj types.Object, resources types.Dict, depth int) error {
	if depth > maxTreeDepth {
		return errors.New("pdf: page tree too deep")
	}
	node, err := d.ctx.DereferenceDict(obj)
	if err != nil {
		return eris.Wrap(err, "pdf: page tree node")
	}
	if node == nil {
		return nil
	}
	if resObj, found := node.Find("Resources"); found {
		if res, err := d.ctx.DereferenceDict(resObj); err == nil && res != nil {
			resources = res
		}
	}

	kidsObj, hasKids := node.Find("Kids")
	if d.name(node["Type"]) == "Pages" || hasKids {
		kids, err := d.ctx.DereferenceArray(kidsObj)
		if err != nil {
			return eris.Wrap(err, "pdf: page tree kids")
		}
		for _, kid := range kids {
			if err := d.walkPages(kid, resources, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	d.pages = append(d.pages, pageEntry{dict: node, resources: resources})
	return nil
}

func (d *pdfcpuDocument) scanWidgets() error {
	for pi, p := range d.pages {
		annotsObj, found := p.dict.Find("Annots")
		if !found {
			continue
		}
		annots, err := d.ctx.DereferenceArray(annotsObj)
		if err != nil {
			return eris.Wrapf(err, "pdf: annotations of page %d", pi+1)
		}
		for ai, a := range annots {
			annot, err := d.ctx.DereferenceDict(a)
			if err != nil || annot == nil {
				continue
			}
			if d.name(annot["Subtype"]) != "Widget" {
				continue
			}
			w, entry := d.describe(annot)
			w.Page = pi + 1
			w.id = len(d.entries)
			entry.page, entry.index = pi+1, ai
			d.widgets = append(d.widgets, w)
			d.entries = append(d.entries, entry)
		}
	}
	applyPolicy(d.policy, d.widgets)
	return nil
}

// describe reads a widget's field attributes, following the Parent chain
// for the inheritable FT, Ff and Opt entries and the partial names.
func (d *pdfcpuDocument) describe(annot types.Dict) (Widget, widgetEntry) {
	var (
		parts        []string
		field        types.Dict
		ft           string
		ff           int
		haveFT       bool
		haveFf       bool
		opt          types.Object
		node         = annot
		depthCounter int
	)
	for node != nil && depthCounter < maxTreeDepth {
		if t, found := node.Find("T"); found {
			if s, err := d.ctx.DereferenceStringOrHexLiteral(t, model.V10, nil); err == nil && s != "" {
				parts = append([]string{s}, parts...)
				if field == nil {
					field = node
				}
			}
		}
		if o, found := node.Find("FT"); found && !haveFT {
			ft, haveFT = d.name(o), true
		}
		if o, found := node.Find("Ff"); found && !haveFf {
			if i, err := d.ctx.DereferenceInteger(o); err == nil && i != nil {
				ff, haveFf = int(*i), true
			}
		}
		if o, found := node.Find("Opt"); found && opt == nil {
			opt = o
		}

		parentObj, found := node.Find("Parent")
		if !found {
			break
		}
		parent, err := d.ctx.DereferenceDict(parentObj)
		if err != nil {
			break
		}
		node = parent
		depthCounter++
	}
	if field == nil {
		field = annot
	}

	w := Widget{
		FullName: strings.Join(parts, "."),
		Rect:     d.rect(annot),
		Code:     widgetCode(ft, ff),
		OnState:  d.onState(annot),
	}
	if ft == "Ch" && opt != nil {
		w.Choices = d.choices(opt)
	}
	return w, widgetEntry{annot: annot, field: field}
}

func widgetCode(ft string, ff int) form.WidgetCode {
	switch ft {
	case "Tx":
		return form.CodeTextAlt
	case "Btn":
		switch {
		case ff&flagPushButton != 0:
			return form.CodePushButton
		case ff&flagRadio != 0:
			return form.CodeRadioButton
		default:
			return form.CodeComboBox
		}
	case "Ch":
		if ff&flagCombo != 0 {
			return form.CodeComboBox
		}
		return form.CodeListBox
	case "Sig":
		return form.CodeSignature
	default:
		return 0
	}
}

func (d *pdfcpuDocument) name(obj types.Object) string {
	if obj == nil {
		return ""
	}
	n, err := d.ctx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return string(n)
}

func (d *pdfcpuDocument) rect(annot types.Dict) Rect {
	rectObj, found := annot.Find("Rect")
	if !found {
		return Rect{}
	}
	arr, err := d.ctx.DereferenceArray(rectObj)
	if err != nil || len(arr) != 4 {
		return Rect{}
	}
	var c [4]float64
	for i, o := range arr {
		if f, err := d.ctx.DereferenceNumber(o); err == nil {
			c[i] = f
		}
	}
	r := Rect{LLX: c[0], LLY: c[1], URX: c[2], URY: c[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

// onState returns the first non-Off normal appearance state, or "Yes".
func (d *pdfcpuDocument) onState(annot types.Dict) string {
	apObj, found := annot.Find("AP")
	if !found {
		return "Yes"
	}
	ap, err := d.ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return "Yes"
	}
	nObj, found := ap.Find("N")
	if !found {
		return "Yes"
	}
	n, err := d.ctx.DereferenceDict(nObj)
	if err != nil || n == nil {
		return "Yes"
	}
	states := make([]string, 0, len(n))
	for k := range n {
		if k != "Off" {
			states = append(states, k)
		}
	}
	if len(states) == 0 {
		return "Yes"
	}
	sort.Strings(states)
	return states[0]
}

// choices reads an Opt array. Entries are either text strings or
// [export display] pairs, in which case the display text is used.
func (d *pdfcpuDocument) choices(opt types.Object) []string {
	arr, err := d.ctx.DereferenceArray(opt)
	if err != nil {
		return nil
	}
	var out []string
	for _, o := range arr {
		if s, err := d.ctx.DereferenceStringOrHexLiteral(o, model.V10, nil); err == nil {
			out = append(out, s)
			continue
		}
		if pair, err := d.ctx.DereferenceArray(o); err == nil && len(pair) >= 2 {
			if s, err := d.ctx.DereferenceStringOrHexLiteral(pair[1], model.V10, nil); err == nil {
				out = append(out, s)
			}
		}
	}
	return out
}

func (d *pdfcpuDocument) Widgets() ([]Widget, error) {
	out := make([]Widget, len(d.widgets))
	copy(out, d.widgets)
	return out, nil
}

func (d *pdfcpuDocument) entry(w Widget) (widgetEntry, error) {
	if w.id < 0 || w.id >= len(d.entries) {
		return widgetEntry{}, fmt.Errorf("pdf: unknown widget %q", w.Name)
	}
	return d.entries[w.id], nil
}

func (d *pdfcpuDocument) SetFieldValue(w Widget, value string) error {
	e, err := d.entry(w)
	if err != nil {
		return err
	}
	switch w.Behavior() {
	case form.BehaviorCheckbox, form.BehaviorRadio:
		state := "Off"
		if form.Affirmative(value) {
			state = w.OnState
		}
		e.field["V"] = types.Name(state)
		e.annot["AS"] = types.Name(state)
	case form.BehaviorText, form.BehaviorDropdown:
		e.field["V"] = types.StringLiteral(escapeLiteral(encode(value)))
	case form.BehaviorRaw:
		// Signature and push-button fields take no text value.
	}
	return nil
}

func (d *pdfcpuDocument) pageOps(page int) (*bytes.Buffer, error) {
	if page < 1 || page > len(d.pages) {
		return nil, fmt.Errorf("pdf: page %d out of range", page)
	}
	b, ok := d.ops[page]
	if !ok {
		b = &bytes.Buffer{}
		d.ops[page] = b
	}
	return b, nil
}

func (d *pdfcpuDocument) DrawText(page int, r Rect, text string, fontSize float64) error {
	b, err := d.pageOps(page)
	if err != nil {
		return err
	}
	b.Write(textOps(r, text, fontSize))
	return nil
}

func (d *pdfcpuDocument) DrawCheck(page int, r Rect) error {
	b, err := d.pageOps(page)
	if err != nil {
		return err
	}
	b.Write(checkOps(r))
	return nil
}

func (d *pdfcpuDocument) DrawFilledCircle(page int, cx, cy, radius float64) error {
	b, err := d.pageOps(page)
	if err != nil {
		return err
	}
	b.Write(circleOps(cx, cy, radius))
	return nil
}

func (d *pdfcpuDocument) DeleteAnnotation(w Widget) error {
	e, err := d.entry(w)
	if err != nil {
		return err
	}
	if d.deleted[e.page] == nil {
		d.deleted[e.page] = make(map[int]bool)
	}
	d.deleted[e.page][e.index] = true
	return nil
}

func (d *pdfcpuDocument) RemoveForm() error {
	root, err := d.ctx.Catalog()
	if err != nil {
		return eris.Wrap(err, "pdf: catalog")
	}
	delete(root, "AcroForm")
	return nil
}

// Save applies the pending drawing and annotation removals and writes the
// document to path.
func (d *pdfcpuDocument) Save(path string) error {
	for page, ops := range d.ops {
		if ops.Len() == 0 {
			continue
		}
		if err := d.appendContent(page, ops.Bytes()); err != nil {
			return err
		}
	}
	for page, idx := range d.deleted {
		if err := d.pruneAnnots(page, idx); err != nil {
			return err
		}
	}
	if err := api.WriteContextFile(d.ctx, path); err != nil {
		return eris.Wrapf(err, "pdf: write %s", path)
	}
	return nil
}

// appendContent brackets the page's existing content in q/Q and appends
// ops as a new content stream. A page without content gets ops alone.
func (d *pdfcpuDocument) appendContent(page int, ops []byte) error {
	p := d.pages[page-1]
	if err := d.ensureFonts(p); err != nil {
		return err
	}

	var existing types.Array
	if obj, found := p.dict.Find("Contents"); found && obj != nil {
		resolved, err := d.ctx.Dereference(obj)
		if err != nil {
			return eris.Wrapf(err, "pdf: contents of page %d", page)
		}
		if arr, ok := resolved.(types.Array); ok {
			existing = append(existing, arr...)
		} else if resolved != nil {
			existing = append(existing, obj)
		}
	}

	if len(existing) == 0 {
		ir, err := d.newStream(ops)
		if err != nil {
			return err
		}
		p.dict["Contents"] = ir
		return nil
	}

	pre, err := d.newStream([]byte("q\n"))
	if err != nil {
		return err
	}
	post, err := d.newStream(append([]byte("Q\n"), ops...))
	if err != nil {
		return err
	}
	contents := append(types.Array{pre}, existing...)
	p.dict["Contents"] = append(contents, post)
	return nil
}

func (d *pdfcpuDocument) newStream(buf []byte) (types.IndirectRef, error) {
	sd, err := d.ctx.NewStreamDictForBuf(buf)
	if err != nil {
		return types.IndirectRef{}, eris.Wrap(err, "pdf: new stream")
	}
	if err := sd.Encode(); err != nil {
		return types.IndirectRef{}, eris.Wrap(err, "pdf: encode stream")
	}
	ir, err := d.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return types.IndirectRef{}, eris.Wrap(err, "pdf: register stream")
	}
	return *ir, nil
}

// ensureFonts makes the Helvetica and ZapfDingbats resources used by the
// drawing operators available on the page. Inherited resources are copied
// onto the page first so other pages are not affected.
func (d *pdfcpuDocument) ensureFonts(p pageEntry) error {
	var res types.Dict
	if obj, found := p.dict.Find("Resources"); found {
		r, err := d.ctx.DereferenceDict(obj)
		if err != nil {
			return eris.Wrap(err, "pdf: page resources")
		}
		res = r
	}
	if res == nil {
		res = types.Dict{}
		for k, v := range p.resources {
			res[k] = v
		}
		p.dict["Resources"] = res
	}

	var fonts types.Dict
	if obj, found := res.Find("Font"); found {
		f, err := d.ctx.DereferenceDict(obj)
		if err != nil {
			return eris.Wrap(err, "pdf: font resources")
		}
		fonts = f
	}
	if fonts == nil {
		fonts = types.Dict{}
		res["Font"] = fonts
	}

	helv, err := d.font(helveticaResource, types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Helvetica"),
		"Encoding": types.Name("WinAnsiEncoding"),
	})
	if err != nil {
		return err
	}
	zadb, err := d.font(dingbatsResource, types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("ZapfDingbats"),
	})
	if err != nil {
		return err
	}
	fonts[helveticaResource] = helv
	fonts[dingbatsResource] = zadb
	return nil
}

func (d *pdfcpuDocument) font(key string, dict types.Dict) (types.IndirectRef, error) {
	if ir, ok := d.fontRefs[key]; ok {
		return ir, nil
	}
	ir, err := d.ctx.IndRefForNewObject(dict)
	if err != nil {
		return types.IndirectRef{}, eris.Wrapf(err, "pdf: register font %s", key)
	}
	d.fontRefs[key] = *ir
	return *ir, nil
}

func (d *pdfcpuDocument) pruneAnnots(page int, remove map[int]bool) error {
	p := d.pages[page-1]
	obj, found := p.dict.Find("Annots")
	if !found {
		return nil
	}
	annots, err := d.ctx.DereferenceArray(obj)
	if err != nil {
		return eris.Wrapf(err, "pdf: annotations of page %d", page)
	}
	kept := types.Array{}
	for i, a := range annots {
		if !remove[i] {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(p.dict, "Annots")
		return nil
	}
	p.dict["Annots"] = kept
	return nil
}
