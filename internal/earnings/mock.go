package earnings

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/hitoshi/kolboard/internal/model"
)

//go:embed mock_symbols.yaml
var mockSymbolsYAML []byte

// MockCompany はモックデータ生成に使う銘柄定義。
type MockCompany struct {
	Symbol      string  `yaml:"symbol"`
	Name        string  `yaml:"name"`
	EPSMin      float64 `yaml:"eps_min"`
	EPSMax      float64 `yaml:"eps_max"`
	RevenueBase int64   `yaml:"revenue_base"`
}

type mockPool struct {
	Companies []MockCompany `yaml:"companies"`
}

// maxCompaniesPerDay は1日あたりに生成する最大社数。
const maxCompaniesPerDay = 3

var eventTimes = []model.EventTime{
	model.EventTimeBeforeOpen,
	model.EventTimeAfterClose,
	model.EventTimeDuringHours,
}

// MockGenerator は全プロバイダが利用できない場合の合成データを生成する。
// 形は決定的（1日1〜3社、固定の銘柄プール）だが値はランダムに生成する。
type MockGenerator struct {
	mu   sync.Mutex
	pool []MockCompany
	rnd  *rand.Rand
}

// DefaultMockCompanies は埋め込みYAMLから銘柄プールを読み込む。
func DefaultMockCompanies() ([]MockCompany, error) {
	var pool mockPool
	if err := yaml.Unmarshal(mockSymbolsYAML, &pool); err != nil {
		return nil, fmt.Errorf("failed to parse mock symbol pool: %w", err)
	}
	if len(pool.Companies) == 0 {
		return nil, fmt.Errorf("mock symbol pool is empty")
	}
	return pool.Companies, nil
}

// NewMockGenerator はMockGeneratorを生成する。rndがnilの場合は現在時刻をシードにする。
func NewMockGenerator(pool []MockCompany, rnd *rand.Rand) *MockGenerator {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &MockGenerator{pool: pool, rnd: rnd}
}

// Symbols は銘柄プールのシンボル一覧を返す。
func (g *MockGenerator) Symbols() []string {
	symbols := make([]string, len(g.pool))
	for i, c := range g.pool {
		symbols[i] = c.Symbol
	}
	return symbols
}

// Generate は日付範囲の各日に1〜3社の決算イベントを生成し、日付昇順で返す。
// 同じ日に同じ銘柄が重複することはない。
func (g *MockGenerator) Generate(r model.DateRange) []model.EarningsEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	var events []model.EarningsEvent
	if len(g.pool) == 0 {
		return events
	}

	for _, day := range r.Days() {
		n := 1 + g.rnd.IntN(maxCompaniesPerDay)
		if n > len(g.pool) {
			n = len(g.pool)
		}

		for _, idx := range g.rnd.Perm(len(g.pool))[:n] {
			events = append(events, g.event(day, g.pool[idx]))
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date < events[j].Date
	})

	return events
}

// event は1社分のモックイベントを生成する。呼び出し元でロックを保持していること。
func (g *MockGenerator) event(day string, c MockCompany) model.EarningsEvent {
	eps := c.EPSMin + g.rnd.Float64()*(c.EPSMax-c.EPSMin)
	// 売上高は基準値の±10%
	revenue := float64(c.RevenueBase) * (0.9 + g.rnd.Float64()*0.2)

	ev := model.EarningsEvent{
		Date:            day,
		Symbol:          c.Symbol,
		CompanyName:     c.Name,
		EPSEstimate:     decimal.NewNullDecimal(decimal.NewFromFloat(eps).Round(2)),
		RevenueEstimate: model.Int64Ptr(int64(revenue)),
		Time:            eventTimes[g.rnd.IntN(len(eventTimes))],
	}

	if t, err := time.Parse(time.DateOnly, day); err == nil {
		ev.Quarter = model.IntPtr((int(t.Month())-1)/3 + 1)
		ev.Year = model.IntPtr(t.Year())
	}

	return ev
}
