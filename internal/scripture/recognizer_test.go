package scripture_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/recency"
	"github.com/MrWong99/lectern/internal/scripture"
	"github.com/MrWong99/lectern/internal/scripture/fuzzy"
	"github.com/MrWong99/lectern/pkg/canon"
)

func newRecognizer(opts ...scripture.Option) *scripture.Recognizer {
	return scripture.NewRecognizer(canon.Protestant(), nil, opts...)
}

func TestProcess_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"john chapter three verse sixteen", []string{"John 3:16"}},
		{"first corinthians thirteen verse four", []string{"1 Corinthians 13:4"}},
		{"genesis chapter two verses eight and nine", []string{"Genesis 2:8-9"}},
		{"revelations twenty two verse three", []string{"Revelation 22:3"}},
		{"the", nil},
		{"fourth john chapter one verse one", nil},
		{"second corinthians chapter five verse seventeen", []string{"2 Corinthians 5:17"}},
		{"third john one verse fourteen", []string{"3 John 1:14"}},
		{"john 3:16", []string{"John 3:16"}},
		{"romans 8 28", []string{"Romans 8:28"}},
		{"john three sixteen", []string{"John 3:16"}},
		{"psalms twenty-three", []string{"Psalm 23:1"}},
		{"psalm one hundred and nineteen verse one hundred five", []string{"Psalm 119:105"}},
		{"songs of solomon chapter two verse one", []string{"Song Of Solomon 2:1"}},
		{"genisis chapter one verse one", []string{"Genesis 1:1"}},
		{"filipians chapter four verse thirteen", []string{"Philippians 4:13"}},
		{"genisis one one", []string{"Genesis 1:1"}},
		{"genisis three sixteen", []string{"Genesis 3:16"}},
		{"philipians four thirteen", []string{"Philippians 4:13"}},
		{"i got a job two days ago", []string{"Job 2:1"}},
		{"banana chapter one verse one", nil},
		{"samuel chapter one verse one", nil},
		{"third kings chapter one verse one", nil},
		{"genesis chapter fifty one verse one", nil},
		{"john chapter three verses sixteen to forty", []string{"John 3:16"}},
		{"matthew five vs. three through twelve", []string{"Matthew 5:3-12"}},
		{"JOHN 3:16–18", []string{"John 3:16-18"}},
		{"turn with me to john three sixteen and then romans eight twenty eight and john 3:16", []string{"John 3:16", "Romans 8:28"}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got := newRecognizer().Process(tc.in)
			if !slices.Equal(got, tc.want) {
				t.Errorf("Process(%q): got=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// spell writes n (1..999) as spoken English words.
func spell(n int) string {
	units := []string{"", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}
	teens := []string{"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}
	tens := []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}

	var parts []string
	if n >= 100 {
		parts = append(parts, units[n/100], "hundred")
		n %= 100
	}
	switch {
	case n >= 20:
		parts = append(parts, tens[n/10])
		if n%10 != 0 {
			parts = append(parts, units[n%10])
		}
	case n >= 10:
		parts = append(parts, teens[n-10])
	case n > 0:
		parts = append(parts, units[n])
	}
	return strings.Join(parts, " ")
}

// spokenBook writes a canonical book name the way a speaker says it.
func spokenBook(name string) string {
	ordinals := map[int]string{1: "first", 2: "second", 3: "third"}
	base, ord := canon.SplitOrdinal(strings.ToLower(name))
	if ord > 0 {
		return ordinals[ord] + " " + base
	}
	return base
}

func TestProcess_EveryChapterRoundTrips(t *testing.T) {
	t.Parallel()

	for _, tbl := range []*canon.Table{canon.Protestant(), canon.Catholic()} {
		r := scripture.NewRecognizer(tbl, nil)
		for _, b := range tbl.Books() {
			for ch := 1; ch <= b.ChapterCount(); ch++ {
				last := b.VerseCount(ch)

				in := fmt.Sprintf("%s %s verse %s", spokenBook(b.Name), spell(ch), spell(last))
				want := fmt.Sprintf("%s %d:%d", b.Name, ch, last)
				if got := r.Process(in); !slices.Equal(got, []string{want}) {
					t.Errorf("%s: Process(%q): got=%q, want [%q]", tbl.Name(), in, got, want)
				}

				over := fmt.Sprintf("%s %s verse %s", spokenBook(b.Name), spell(ch), spell(last+1))
				if got := r.Process(over); len(got) != 0 {
					t.Errorf("%s: Process(%q): got=%q, want none", tbl.Name(), over, got)
				}
			}
		}
	}
}

func TestProcess_RecordsRecency(t *testing.T) {
	t.Parallel()
	buf := recency.New()
	r := scripture.NewRecognizer(canon.Protestant(), buf)

	r.Process("john 3:16")
	r.Process("romans 8:28")
	r.Process("genesis 1:1")
	r.Process("john three sixteen")

	want := []string{"Romans 8:28", "Genesis 1:1", "John 3:16"}
	if got := r.Recent(); !slices.Equal(got, want) {
		t.Errorf("Recent: got=%q, want %q", got, want)
	}
	if r.Buffer() != buf {
		t.Error("Buffer() should return the buffer passed to NewRecognizer")
	}
}

func TestProcess_RepeatInFragmentRefreshesRecency(t *testing.T) {
	t.Parallel()
	r := newRecognizer()
	ctx := context.Background()

	dets := r.Recognize(ctx, "john 3:16 then romans 8:28 and again john 3:16")
	refs := make([]string, len(dets))
	for i, d := range dets {
		refs[i] = d.Reference.String()
	}
	if want := []string{"John 3:16", "Romans 8:28"}; !slices.Equal(refs, want) {
		t.Errorf("detections: got=%q, want %q", refs, want)
	}
	if dets[0].Change != recency.Moved {
		t.Errorf("John 3:16 change: got=%v, want %v", dets[0].Change, recency.Moved)
	}
	if want := []string{"Romans 8:28", "John 3:16"}; !slices.Equal(r.Recent(), want) {
		t.Errorf("Recent: got=%q, want %q", r.Recent(), want)
	}
}

func TestRecognize_ReportsChange(t *testing.T) {
	t.Parallel()
	r := newRecognizer()
	ctx := context.Background()

	first := r.Recognize(ctx, "acts 2:38")
	if len(first) != 1 || first[0].Change != recency.Added {
		t.Fatalf("first Recognize: got=%+v, want one added detection", first)
	}
	if first[0].Text != "acts 2:38" {
		t.Errorf("Text: got=%q, want %q", first[0].Text, "acts 2:38")
	}
	again := r.Recognize(ctx, "acts 2:38")
	if len(again) != 1 || again[0].Change != recency.Unchanged {
		t.Errorf("repeat Recognize: got=%+v, want one unchanged detection", again)
	}
	r.Recognize(ctx, "acts 1:8")
	moved := r.Recognize(ctx, "acts two thirty eight")
	if len(moved) != 1 || moved[0].Change != recency.Moved {
		t.Errorf("refresh Recognize: got=%+v, want one moved detection", moved)
	}
}

func TestRecognizer_RangePolicy(t *testing.T) {
	t.Parallel()

	drop := newRecognizer(scripture.WithRangePolicy(scripture.RangeDrop))
	degrade := newRecognizer()

	unparsable := "john 3:16-17000"
	if got := drop.Process(unparsable); len(got) != 0 {
		t.Errorf("RangeDrop Process(%q): got=%q, want none", unparsable, got)
	}
	if got := degrade.Process(unparsable); !slices.Equal(got, []string{"John 3:16"}) {
		t.Errorf("RangeDegrade Process(%q): got=%q, want [John 3:16]", unparsable, got)
	}

	pastChapter := "john chapter three verses sixteen to forty"
	for name, r := range map[string]*scripture.Recognizer{"drop": drop, "degrade": degrade} {
		if got := r.Process(pastChapter); !slices.Equal(got, []string{"John 3:16"}) {
			t.Errorf("%s Process(%q): got=%q, want [John 3:16]", name, pastChapter, got)
		}
	}
}

func TestRecognizer_Reconfigure(t *testing.T) {
	t.Parallel()
	r := newRecognizer()

	if got := r.Process("filipians chapter four verse thirteen"); len(got) != 1 {
		t.Fatalf("phonetic scorer: got=%q, want one reference", got)
	}

	r.Reconfigure(scripture.WithScorer(fuzzy.Edit{}))
	if got := r.Process("filipians chapter four verse thirteen"); len(got) != 0 {
		t.Errorf("edit scorer: got=%q, want none", got)
	}

	r.Reconfigure(scripture.WithThreshold(99))
	if got := r.Process("genisis chapter one verse one"); len(got) != 0 {
		t.Errorf("threshold 99: got=%q, want none", got)
	}
	if r.Threshold() != 99 {
		t.Errorf("Threshold: got=%.1f, want 99", r.Threshold())
	}

	r.Reconfigure(scripture.WithCanon(canon.Catholic()), scripture.WithThreshold(scripture.DefaultThreshold))
	if got := r.Process("first maccabees chapter one verse one"); !slices.Equal(got, []string{"1 Maccabees 1:1"}) {
		t.Errorf("catholic canon: got=%q, want [1 Maccabees 1:1]", got)
	}
	if r.Table().Name() != canon.NameCatholic {
		t.Errorf("Table: got=%q, want catholic", r.Table().Name())
	}

	// The recency buffer survives reconfiguration.
	if got := r.Recent(); len(got) != 2 {
		t.Errorf("Recent after reconfigure: got=%q, want 2 entries", got)
	}
}

func TestRecognizer_ConcurrentUse(t *testing.T) {
	t.Parallel()
	r := newRecognizer()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 20 {
				r.Process(fmt.Sprintf("psalm %d:%d", i+1, j%5+1))
				r.Recent()
				if j == 10 {
					r.Reconfigure(scripture.WithThreshold(scripture.DefaultThreshold))
				}
			}
		}()
	}
	wg.Wait()

	if got := r.Buffer().Len(); got != 40 {
		t.Errorf("Len: got=%d, want 40", got)
	}
}

func TestRecognizer_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	r := newRecognizer(scripture.WithMetrics(m))
	r.Process("john 3:16 and fourth john 1:1 and john 3:99")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "lectern.candidates" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				counts[v.AsString()] = dp.Value
			}
		}
	}
	want := map[string]int64{"accepted": 1, "unresolved_book": 1, "verse_out_of_range": 1}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("candidates{outcome=%s}: got=%d, want %d (all: %v)", k, counts[k], v, counts)
		}
	}
}
