package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-bytebpe/internal/addedtokens"
	"github.com/example/go-bytebpe/internal/bpe"
	"github.com/example/go-bytebpe/internal/decoder"
	"github.com/example/go-bytebpe/internal/encoding"
	"github.com/example/go-bytebpe/internal/normalizer"
	"github.com/example/go-bytebpe/internal/padding"
	"github.com/example/go-bytebpe/internal/postprocess"
	"github.com/example/go-bytebpe/internal/pretokenizer"
	"github.com/example/go-bytebpe/internal/textview"
	"github.com/example/go-bytebpe/internal/truncation"
	"github.com/example/go-bytebpe/internal/vocab"
)

// ErrNoModel is returned by New when Options.Model is nil.
var ErrNoModel = errors.New("tokenizer: no BPE model configured")

// Options assembles a Pipeline. Only Model is required.
type Options struct {
	Model         *bpe.Model
	Normalizer    normalizer.Normalizer
	PreTokenizer  pretokenizer.PreTokenizer
	PostProcessor postprocess.Processor
	Decoder       decoder.Decoder
	AddedTokens   []addedtokens.Token
	Truncation    truncation.Params
	// Padding is applied by EncodeBatch, and by EncodeInput for fixed sizes.
	Padding *padding.Params
	// AddSpecialTokens is used by Encode, which has no flag of its own.
	AddSpecialTokens bool
	// Workers bounds EncodeBatch concurrency. Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Input is one item to encode: a sequence and an optional pair sequence.
type Input struct {
	A string  `json:"text"`
	B *string `json:"pair,omitempty"`
}

// Pipeline is a configured tokenizer. It is safe for concurrent use.
type Pipeline struct {
	opts      Options
	model     *bpe.Model
	vocab     *vocab.Vocabulary
	added     *addedtokens.Splitter
	addedByID map[int]addedtokens.Token
	truncator truncation.Truncator
	post      postprocess.Processor
	logger    *slog.Logger
}

// New validates opts and builds a Pipeline. Invalid truncation or padding
// parameters and malformed added tokens are reported here rather than at
// encode time.
func New(opts Options) (*Pipeline, error) {
	if opts.Model == nil {
		return nil, ErrNoModel
	}

	trunc, err := truncation.New(opts.Truncation)
	if err != nil {
		return nil, err
	}
	if opts.Padding != nil {
		if err := opts.Padding.Validate(); err != nil {
			return nil, err
		}
	}

	splitter, err := addedtokens.NewSplitter(opts.AddedTokens)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		opts:      opts,
		model:     opts.Model,
		vocab:     opts.Model.Vocab(),
		added:     splitter,
		addedByID: make(map[int]addedtokens.Token, len(opts.AddedTokens)),
		truncator: trunc,
		post:      opts.PostProcessor,
		logger:    opts.Logger,
	}
	for _, t := range splitter.Tokens() {
		p.addedByID[t.ID] = t
	}
	if p.post == nil {
		p.post = postprocess.Default{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Encode implements Tokenizer.
func (p *Pipeline) Encode(text string) ([]int, error) {
	enc, err := p.EncodeInput(Input{A: text}, p.opts.AddSpecialTokens)
	if err != nil {
		return nil, err
	}
	return enc.IDs, nil
}

// EncodeInput runs the whole pipeline for one input.
func (p *Pipeline) EncodeInput(in Input, addSpecial bool) (encoding.Encoding, error) {
	a := p.encodeSequence(in.A, 0)
	var b *encoding.Encoding
	if in.B != nil {
		eb := p.encodeSequence(*in.B, 1)
		b = &eb
	}

	numAdded := 0
	if addSpecial {
		numAdded = p.post.AddedTokens(b != nil)
	}
	a, b, err := p.truncator.Truncate(a, b, numAdded)
	if err != nil {
		return encoding.Encoding{}, fmt.Errorf("truncate: %w", err)
	}

	out := p.post.Process(a, b, addSpecial)
	if p.opts.Padding != nil {
		if _, longest := p.opts.Padding.Size.(padding.Longest); !longest {
			out = padding.PadOne(out, *p.opts.Padding)
		}
	}

	p.logger.Debug("encoded input",
		slog.Int("chars", len(in.A)),
		slog.Bool("pair", in.B != nil),
		slog.Int("tokens", out.Len()),
	)
	return out, nil
}

// EncodeBatch encodes inputs concurrently and pads the results together.
// Output order matches input order.
func (p *Pipeline) EncodeBatch(ctx context.Context, inputs []Input, addSpecial bool) ([]encoding.Encoding, error) {
	out := make([]encoding.Encoding, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			enc, err := p.EncodeInput(in, addSpecial)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = enc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.opts.Padding != nil {
		out = padding.Pad(out, *p.opts.Padding)
	}
	return out, nil
}

func (p *Pipeline) workers() int {
	if p.opts.Workers > 0 {
		return p.opts.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// encodeSequence tokenizes one text without special tokens.
func (p *Pipeline) encodeSequence(text string, typeID int) encoding.Encoding {
	segs := p.added.Split(text, p.normalize)
	// Plain segments are viewed inside the joined input so a chunk's offset
	// tells pre-tokenizers whether it starts the text.
	input := textview.New(joinSegments(segs))

	var defs []vocab.TokenDefinition
	off := 0
	for _, seg := range segs {
		start := off
		off += len(seg.Text)
		if seg.Token != nil {
			defs = append(defs, vocab.TokenDefinition{
				ID:      seg.Token.ID,
				Key:     seg.Token.Content,
				Special: seg.Token.Special,
			})
			continue
		}

		chunks := []textview.View{input.MustSub(start, len(seg.Text))}
		if p.opts.PreTokenizer != nil {
			chunks = p.opts.PreTokenizer.PreTokenize(chunks)
		}
		for _, c := range chunks {
			defs = append(defs, p.model.Tokenize(c.String())...)
		}
	}
	return encoding.FromDefinitions(defs, typeID)
}

func joinSegments(segs []addedtokens.Segment) string {
	if len(segs) == 1 {
		return segs[0].Text
	}
	var sb strings.Builder
	for _, seg := range segs {
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

func (p *Pipeline) normalize(s string) string {
	if p.opts.Normalizer == nil {
		return s
	}
	return p.opts.Normalizer.Normalize(s)
}

// Decode maps ids back to text. Unknown ids are skipped, as are special
// tokens when skipSpecial is set.
func (p *Pipeline) Decode(ids []int, skipSpecial bool) string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if t, ok := p.addedByID[id]; ok {
			if skipSpecial && t.Special {
				continue
			}
			tokens = append(tokens, t.Content)
			continue
		}
		def, ok := p.vocab.ByID(id)
		if !ok || (skipSpecial && def.Special) {
			continue
		}
		tokens = append(tokens, def.Key)
	}
	return decoder.Decode(p.opts.Decoder, tokens)
}

// DecodeBatch decodes each id list.
func (p *Pipeline) DecodeBatch(batch [][]int, skipSpecial bool) []string {
	out := make([]string, len(batch))
	for i, ids := range batch {
		out[i] = p.Decode(ids, skipSpecial)
	}
	return out
}

// IDToToken returns the token string for id.
func (p *Pipeline) IDToToken(id int) (string, bool) {
	if t, ok := p.addedByID[id]; ok {
		return t.Content, true
	}
	def, ok := p.vocab.ByID(id)
	return def.Key, ok
}

// TokenToID returns the id of token.
func (p *Pipeline) TokenToID(token string) (int, bool) {
	for _, t := range p.added.Tokens() {
		if t.Content == token {
			return t.ID, true
		}
	}
	def, ok := p.vocab.ByKey(token)
	return def.ID, ok
}

// VocabSize is the number of distinct ids the pipeline can produce.
func (p *Pipeline) VocabSize() int {
	n := p.vocab.Len()
	for id := range p.addedByID {
		if _, ok := p.vocab.ByID(id); !ok {
			n++
		}
	}
	return n
}

// Vocab returns the model vocabulary.
func (p *Pipeline) Vocab() *vocab.Vocabulary { return p.vocab }

// Model returns the BPE model.
func (p *Pipeline) Model() *bpe.Model { return p.model }

// AddedTokens returns the registered added tokens.
func (p *Pipeline) AddedTokens() []addedtokens.Token { return p.added.Tokens() }

// Options returns the options the pipeline was built from.
func (p *Pipeline) Options() Options { return p.opts }
