package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/example/go-bytebpe/internal/addedtokens"
	"github.com/example/go-bytebpe/internal/bpe"
	"github.com/example/go-bytebpe/internal/decoder"
	"github.com/example/go-bytebpe/internal/normalizer"
	"github.com/example/go-bytebpe/internal/padding"
	"github.com/example/go-bytebpe/internal/postprocess"
	"github.com/example/go-bytebpe/internal/pretokenizer"
	"github.com/example/go-bytebpe/internal/truncation"
	"github.com/example/go-bytebpe/internal/vocab"
)

var (
	// ErrUnsupportedModel is returned for tokenizer.json models other than BPE.
	ErrUnsupportedModel = errors.New("tokenizer: unsupported model type")
	// ErrUnsupportedComponent is returned for an unknown normalizer,
	// pre-tokenizer, post-processor or decoder type.
	ErrUnsupportedComponent = errors.New("tokenizer: unsupported component")
)

// LoadOption adjusts the Options a loader assembles.
type LoadOption func(*loadSettings)

type loadSettings struct {
	cacheCapacity int
	logger        *slog.Logger
	overrides     []func(*Options)
}

// WithCacheCapacity sets the model's chunk cache size.
func WithCacheCapacity(n int) LoadOption {
	return func(s *loadSettings) { s.cacheCapacity = n }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) LoadOption {
	return func(s *loadSettings) { s.logger = l }
}

// WithOptions applies fn to the assembled Options before the pipeline is
// built, for overrides such as truncation from the command line.
func WithOptions(fn func(*Options)) LoadOption {
	return func(s *loadSettings) { s.overrides = append(s.overrides, fn) }
}

func applyLoadOptions(opts []LoadOption) *loadSettings {
	s := &loadSettings{logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *loadSettings) build(o Options) (*Pipeline, error) {
	o.Logger = s.logger
	for _, fn := range s.overrides {
		fn(&o)
	}
	return New(o)
}

// FromFile loads a HuggingFace tokenizer.json file.
func FromFile(path string, opts ...LoadOption) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer %q: %w", path, err)
	}
	p, err := FromJSON(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %q: %w", path, err)
	}
	return p, nil
}

// FromJSON builds a pipeline from tokenizer.json content.
func FromJSON(data []byte, opts ...LoadOption) (*Pipeline, error) {
	settings := applyLoadOptions(opts)

	var raw struct {
		Truncation    *truncationJSON     `json:"truncation"`
		Padding       *paddingJSON        `json:"padding"`
		AddedTokens   []addedtokens.Token `json:"added_tokens"`
		Normalizer    json.RawMessage     `json:"normalizer"`
		PreTokenizer  json.RawMessage     `json:"pre_tokenizer"`
		Model         modelJSON           `json:"model"`
		PostProcessor json.RawMessage     `json:"post_processor"`
		Decoder       json.RawMessage     `json:"decoder"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}

	var o Options
	var err error

	if o.Normalizer, err = buildNormalizer(raw.Normalizer); err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}
	if o.PreTokenizer, err = buildPreTokenizer(raw.PreTokenizer); err != nil {
		return nil, fmt.Errorf("pre_tokenizer: %w", err)
	}
	if o.Decoder, err = buildDecoder(raw.Decoder); err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}

	o.AddedTokens = raw.AddedTokens
	o.Model, err = raw.Model.build(raw.AddedTokens, usesByteLevel(o.PreTokenizer), settings)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	if o.PostProcessor, err = buildPostProcessor(raw.PostProcessor); err != nil {
		return nil, fmt.Errorf("post_processor: %w", err)
	}
	if raw.Truncation != nil {
		if o.Truncation, err = raw.Truncation.params(); err != nil {
			return nil, err
		}
	}
	if raw.Padding != nil {
		pp, err := raw.Padding.params()
		if err != nil {
			return nil, err
		}
		o.Padding = &pp
	}
	o.AddSpecialTokens = true

	return settings.build(o)
}

// ---------------------------------------------------------------------------
// model
// ---------------------------------------------------------------------------

type modelJSON struct {
	Type                    string          `json:"type"`
	Dropout                 *float64        `json:"dropout"`
	UnkToken                *string         `json:"unk_token"`
	ContinuingSubwordPrefix *string         `json:"continuing_subword_prefix"`
	EndOfWordSuffix         *string         `json:"end_of_word_suffix"`
	FuseUnk                 bool            `json:"fuse_unk"`
	ByteFallback            bool            `json:"byte_fallback"`
	IgnoreMerges            bool            `json:"ignore_merges"`
	Vocab                   map[string]int  `json:"vocab"`
	Merges                  json.RawMessage `json:"merges"`
}

func (m modelJSON) build(added []addedtokens.Token, byteLevel bool, s *loadSettings) (*bpe.Model, error) {
	if m.Type != "" && m.Type != "BPE" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, m.Type)
	}
	if m.Dropout != nil && *m.Dropout > 0 {
		s.logger.Warn("ignoring BPE dropout; encoding is deterministic", slog.Float64("dropout", *m.Dropout))
	}

	merges, err := parseJSONMerges(m.Merges)
	if err != nil {
		return nil, err
	}

	var dec vocab.Decoration
	if m.ContinuingSubwordPrefix != nil {
		dec.SubWordPrefix = *m.ContinuingSubwordPrefix
	}
	if m.EndOfWordSuffix != nil {
		dec.WordSuffix = *m.EndOfWordSuffix
	}

	v, err := vocabWithAdded(m.Vocab, added, dec)
	if err != nil {
		return nil, err
	}

	opts := bpe.Options{
		FuseUnknown:   m.FuseUnk,
		ByteFallback:  m.ByteFallback,
		ByteLevel:     byteLevel,
		IgnoreMerges:  m.IgnoreMerges,
		CacheCapacity: s.cacheCapacity,
	}
	if m.UnkToken != nil {
		opts.UnkToken = *m.UnkToken
	}
	return bpe.NewModel(v, merges, opts)
}

// vocabWithAdded merges added tokens that the model vocabulary lacks, and
// marks special ones.
func vocabWithAdded(base map[string]int, added []addedtokens.Token, dec vocab.Decoration) (*vocab.Vocabulary, error) {
	m := make(map[string]int, len(base)+len(added))
	ids := make(map[int]bool, len(base)+len(added))
	for k, id := range base {
		m[k] = id
		ids[id] = true
	}

	var specials []string
	for _, t := range added {
		if t.Content == "" {
			continue
		}
		if _, ok := m[t.Content]; !ok && !ids[t.ID] {
			m[t.Content] = t.ID
			ids[t.ID] = true
		}
		if t.Special {
			specials = append(specials, t.Content)
		}
	}
	return vocab.FromMap(m, dec, specials...)
}

// parseJSONMerges accepts both the "a b" string form and the ["a","b"]
// pair form.
func parseJSONMerges(raw json.RawMessage) ([]bpe.Merge, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return bpe.ParseMerges(lines)
	}

	var pairs [][]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("parse merges: %w", err)
	}
	merges := make([]bpe.Merge, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("%w: pair %d has %d elements", bpe.ErrMalformedMerge, i, len(p))
		}
		merges[i] = bpe.Merge{Left: p[0], Right: p[1]}
	}
	return merges, nil
}

// ---------------------------------------------------------------------------
// components
// ---------------------------------------------------------------------------

// component is the union of every field the supported component types use.
type component struct {
	Type string `json:"type"`

	Normalizers   []json.RawMessage `json:"normalizers"`
	Pretokenizers []json.RawMessage `json:"pretokenizers"`
	Decoders      []json.RawMessage `json:"decoders"`
	Processors    []json.RawMessage `json:"processors"`

	CleanText          *bool `json:"clean_text"`
	HandleChineseChars *bool `json:"handle_chinese_chars"`
	StripAccents       *bool `json:"strip_accents"`
	Lowercase          *bool `json:"lowercase"`
	StripLeft          bool  `json:"strip_left"`
	StripRight         bool  `json:"strip_right"`

	Prepend  string      `json:"prepend"`
	Pattern  patternJSON `json:"pattern"`
	Content  string      `json:"content"`
	Behavior string      `json:"behavior"`
	Invert   bool        `json:"invert"`

	AddPrefixSpace   *bool  `json:"add_prefix_space"`
	UseRegex         *bool  `json:"use_regex"`
	IndividualDigits bool   `json:"individual_digits"`
	Replacement      string `json:"replacement"`
	PrependScheme    string `json:"prepend_scheme"`
	Delimiter        string `json:"delimiter"`

	Start  int    `json:"start"`
	Stop   int    `json:"stop"`
	Suffix string `json:"suffix"`

	Single        []templatePieceJSON         `json:"single"`
	Pair          []templatePieceJSON         `json:"pair"`
	SpecialTokens map[string]specialTokenJSON `json:"special_tokens"`
	Sep           []json.RawMessage           `json:"sep"`
	Cls           []json.RawMessage           `json:"cls"`
}

type patternJSON struct {
	String *string `json:"String"`
	Regex  *string `json:"Regex"`
}

// regex returns the pattern as a regular expression, escaping literals.
func (p patternJSON) regex() (string, bool) {
	switch {
	case p.Regex != nil:
		return *p.Regex, true
	case p.String != nil:
		return regexp2.Escape(*p.String), true
	}
	return "", false
}

func parseComponent(raw json.RawMessage) (*component, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var c component
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func firstRune(s string, def rune) rune {
	if r, size := utf8.DecodeRuneInString(s); size > 0 && r != utf8.RuneError {
		return r
	}
	return def
}

func buildNormalizer(raw json.RawMessage) (normalizer.Normalizer, error) {
	c, err := parseComponent(raw)
	if c == nil || err != nil {
		return nil, err
	}

	switch c.Type {
	case "Sequence":
		seq := make(normalizer.Sequence, 0, len(c.Normalizers))
		for _, r := range c.Normalizers {
			n, err := buildNormalizer(r)
			if err != nil {
				return nil, err
			}
			if n != nil {
				seq = append(seq, n)
			}
		}
		return seq, nil
	case "NFC":
		return normalizer.NFC, nil
	case "NFD":
		return normalizer.NFD, nil
	case "NFKC":
		return normalizer.NFKC, nil
	case "NFKD":
		return normalizer.NFKD, nil
	case "Lowercase":
		return normalizer.Lowercase, nil
	case "StripAccents":
		return normalizer.StripAccents, nil
	case "Strip":
		return normalizer.Strip{Left: c.StripLeft, Right: c.StripRight}, nil
	case "Prepend":
		return normalizer.Prepend{Prefix: c.Prepend}, nil
	case "Replace":
		if c.Pattern.String != nil {
			return normalizer.NewLiteralReplace(*c.Pattern.String, c.Content), nil
		}
		if c.Pattern.Regex != nil {
			return normalizer.NewRegexReplace(*c.Pattern.Regex, c.Content)
		}
		return nil, fmt.Errorf("%w: Replace without pattern", ErrUnsupportedComponent)
	case "BertNormalizer":
		lower := boolOr(c.Lowercase, true)
		return normalizer.Bert{
			CleanText:          boolOr(c.CleanText, true),
			HandleChineseChars: boolOr(c.HandleChineseChars, true),
			StripAccents:       boolOr(c.StripAccents, lower),
			Lowercase:          lower,
		}, nil
	}
	return nil, fmt.Errorf("%w: normalizer %q", ErrUnsupportedComponent, c.Type)
}

func buildPreTokenizer(raw json.RawMessage) (pretokenizer.PreTokenizer, error) {
	c, err := parseComponent(raw)
	if c == nil || err != nil {
		return nil, err
	}

	behavior := pretokenizer.Isolated
	if c.Behavior != "" {
		if behavior, err = pretokenizer.ParseBehavior(c.Behavior); err != nil {
			return nil, err
		}
	}

	switch c.Type {
	case "Sequence":
		seq := make(pretokenizer.Sequence, 0, len(c.Pretokenizers))
		for _, r := range c.Pretokenizers {
			p, err := buildPreTokenizer(r)
			if err != nil {
				return nil, err
			}
			if p != nil {
				seq = append(seq, p)
			}
		}
		return seq, nil
	case "ByteLevel":
		return pretokenizer.ByteLevel{
			AddPrefixSpace: boolOr(c.AddPrefixSpace, false),
			UseRegex:       boolOr(c.UseRegex, true),
		}, nil
	case "Whitespace":
		return pretokenizer.Whitespace{}, nil
	case "WhitespaceSplit":
		return pretokenizer.WhitespaceSplit{}, nil
	case "BertPreTokenizer":
		return pretokenizer.Sequence{
			pretokenizer.WhitespaceSplit{},
			pretokenizer.Punctuation{Behavior: pretokenizer.Isolated},
		}, nil
	case "Punctuation":
		return pretokenizer.Punctuation{Behavior: behavior}, nil
	case "Digits":
		return pretokenizer.Digits{IndividualDigits: c.IndividualDigits}, nil
	case "CharDelimiterSplit":
		return pretokenizer.CharDelimiter{Delimiter: firstRune(c.Delimiter, ' ')}, nil
	case "Metaspace":
		return pretokenizer.Metaspace{
			Replacement:    firstRune(c.Replacement, '▁'),
			AddPrefixSpace: metaspacePrefix(c),
			FirstOnly:      c.PrependScheme == "first",
		}, nil
	case "Split":
		pattern, ok := c.Pattern.regex()
		if !ok {
			return nil, fmt.Errorf("%w: Split without pattern", ErrUnsupportedComponent)
		}
		// tokenizer.json treats matches as delimiters unless inverted, the
		// opposite of Split's default.
		return pretokenizer.NewSplit(pattern, behavior, !c.Invert)
	}
	return nil, fmt.Errorf("%w: pre_tokenizer %q", ErrUnsupportedComponent, c.Type)
}

// metaspacePrefix reads prepend_scheme, falling back to the older
// add_prefix_space flag. "first" still prefixes, but only the opening chunk.
func metaspacePrefix(c *component) bool {
	if c.PrependScheme != "" {
		return c.PrependScheme != "never"
	}
	return boolOr(c.AddPrefixSpace, true)
}

// usesByteLevel reports whether p contains a byte-level stage, in which case
// the model must map chunks through the byte-level alphabet.
func usesByteLevel(p pretokenizer.PreTokenizer) bool {
	switch v := p.(type) {
	case pretokenizer.ByteLevel:
		return true
	case pretokenizer.Sequence:
		for _, inner := range v {
			if usesByteLevel(inner) {
				return true
			}
		}
	}
	return false
}

func buildDecoder(raw json.RawMessage) (decoder.Decoder, error) {
	c, err := parseComponent(raw)
	if c == nil || err != nil {
		return nil, err
	}

	switch c.Type {
	case "Sequence":
		seq := make(decoder.Sequence, 0, len(c.Decoders))
		for _, r := range c.Decoders {
			d, err := buildDecoder(r)
			if err != nil {
				return nil, err
			}
			if d != nil {
				seq = append(seq, d)
			}
		}
		return seq, nil
	case "ByteLevel":
		return decoder.ByteLevel{}, nil
	case "ByteFallback":
		return decoder.ByteFallback{}, nil
	case "Fuse":
		return decoder.Fuse{}, nil
	case "Strip":
		return decoder.Strip{Content: c.Content, Start: c.Start, Stop: c.Stop}, nil
	case "Replace":
		if c.Pattern.String == nil {
			return nil, fmt.Errorf("%w: decoder Replace needs a String pattern", ErrUnsupportedComponent)
		}
		return decoder.Replace{Pattern: *c.Pattern.String, Content: c.Content}, nil
	case "BPEDecoder":
		suffix := c.Suffix
		if suffix == "" {
			suffix = "</w>"
		}
		return decoder.BPESuffix{Suffix: suffix}, nil
	case "Metaspace":
		return decoder.Metaspace{
			Replacement:    firstRune(c.Replacement, '▁'),
			AddPrefixSpace: metaspacePrefix(c),
		}, nil
	}
	return nil, fmt.Errorf("%w: decoder %q", ErrUnsupportedComponent, c.Type)
}

// ---------------------------------------------------------------------------
// post-processor
// ---------------------------------------------------------------------------

type templatePieceJSON struct {
	SpecialToken *struct {
		ID     string `json:"id"`
		TypeID int    `json:"type_id"`
	} `json:"SpecialToken"`
	Sequence *struct {
		ID     string `json:"id"`
		TypeID int    `json:"type_id"`
	} `json:"Sequence"`
}

func (p templatePieceJSON) String() string {
	if p.SpecialToken != nil {
		return fmt.Sprintf("%s:%d", p.SpecialToken.ID, p.SpecialToken.TypeID)
	}
	if p.Sequence != nil {
		return fmt.Sprintf("$%s:%d", p.Sequence.ID, p.Sequence.TypeID)
	}
	return ""
}

func templateString(pieces []templatePieceJSON) string {
	parts := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if s := p.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

type specialTokenJSON struct {
	ID     string   `json:"id"`
	IDs    []int    `json:"ids"`
	Tokens []string `json:"tokens"`
}

// tokenPair decodes the ["[SEP]", 102] form used by Bert and Roberta
// processors.
func tokenPair(raw []json.RawMessage) (postprocess.SpecialToken, error) {
	if len(raw) != 2 {
		return postprocess.SpecialToken{}, fmt.Errorf("%w: expected [token, id]", ErrUnsupportedComponent)
	}
	var token string
	var id int
	if err := json.Unmarshal(raw[0], &token); err != nil {
		return postprocess.SpecialToken{}, err
	}
	if err := json.Unmarshal(raw[1], &id); err != nil {
		return postprocess.SpecialToken{}, err
	}
	return postprocess.NewSpecialToken(token, id), nil
}

func buildPostProcessor(raw json.RawMessage) (postprocess.Processor, error) {
	c, err := parseComponent(raw)
	if c == nil || err != nil {
		return nil, err
	}

	switch c.Type {
	case "TemplateProcessing":
		specials := make([]postprocess.SpecialToken, 0, len(c.SpecialTokens))
		for _, s := range c.SpecialTokens {
			specials = append(specials, postprocess.SpecialToken{ID: s.ID, IDs: s.IDs, Tokens: s.Tokens})
		}
		return postprocess.NewTemplate(templateString(c.Single), templateString(c.Pair), specials)
	case "BertProcessing", "RobertaProcessing":
		sep, err := tokenPair(c.Sep)
		if err != nil {
			return nil, err
		}
		cls, err := tokenPair(c.Cls)
		if err != nil {
			return nil, err
		}
		if c.Type == "BertProcessing" {
			return postprocess.Bert(cls, sep)
		}
		return postprocess.Roberta(cls, sep)
	case "ByteLevel":
		// Only adjusts offsets, which encodings do not carry.
		return nil, nil
	case "Sequence":
		// The first processor that adds tokens wins.
		for _, r := range c.Processors {
			p, err := buildPostProcessor(r)
			if err != nil {
				return nil, err
			}
			if p != nil {
				return p, nil
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: post_processor %q", ErrUnsupportedComponent, c.Type)
}

// ---------------------------------------------------------------------------
// truncation and padding
// ---------------------------------------------------------------------------

type truncationJSON struct {
	MaxLength int    `json:"max_length"`
	Stride    int    `json:"stride"`
	Strategy  string `json:"strategy"`
	Direction string `json:"direction"`
}

func (t truncationJSON) params() (truncation.Params, error) {
	strategy, err := truncation.ParseStrategy(t.Strategy)
	if err != nil {
		return truncation.Params{}, err
	}
	if t.Strategy == "" {
		strategy = truncation.LongestFirst
	}
	dir, err := truncation.ParseDirection(t.Direction)
	if err != nil {
		return truncation.Params{}, err
	}
	return truncation.Params{MaxLength: t.MaxLength, Stride: t.Stride, Strategy: strategy, Direction: dir}, nil
}

type paddingJSON struct {
	Strategy        json.RawMessage `json:"strategy"`
	Direction       string          `json:"direction"`
	PadToMultipleOf *int            `json:"pad_to_multiple_of"`
	PadID           int             `json:"pad_id"`
	PadTypeID       int             `json:"pad_type_id"`
	PadToken        string          `json:"pad_token"`
}

func (p paddingJSON) params() (padding.Params, error) {
	var size padding.SizeProvider = padding.Longest{}

	var fixed struct {
		Fixed *int `json:"Fixed"`
	}
	if len(p.Strategy) > 0 && json.Unmarshal(p.Strategy, &fixed) == nil && fixed.Fixed != nil {
		size = padding.Fixed{N: *fixed.Fixed}
	}
	if p.PadToMultipleOf != nil && *p.PadToMultipleOf > 1 {
		size = padding.MultipleOf{Inner: size, Multiple: *p.PadToMultipleOf}
	}

	dir, err := padding.ParseDirection(p.Direction)
	if err != nil {
		return padding.Params{}, err
	}
	return padding.Params{
		Size:      size,
		Direction: dir,
		PadID:     p.PadID,
		PadTypeID: p.PadTypeID,
		PadToken:  p.PadToken,
	}, nil
}
