package redis

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/hybridrank/internal/db"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty addrs")
	}
}

func TestServerErrorContains(t *testing.T) {
	err := mock.Result(mock.RedisError("Unknown Index name")).Error()
	if !serverErrorContains(err, "unknown index name") {
		t.Errorf("expected case-insensitive match for %v", err)
	}
	if serverErrorContains(err, "already exists") {
		t.Error("unexpected match")
	}
	if serverErrorContains(context.DeadlineExceeded, "deadline") {
		t.Error("transport errors are not server replies")
	}
}

func TestWaitForReady_RetriesUntilPong(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(errors.New("loading"))),
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG"))),
	)

	s := NewStoreForTest(c)
	if err := s.WaitForReady(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(errors.New("connection refused"))).AnyTimes()

	s := NewStoreForTest(c)
	err := s.WaitForReady(context.Background(), 120*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected timeout carrying last ping error, got %v", err)
	}
}

// --- hash.go tests ---

func TestHGetAll_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "hr:tenant:7")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"code":           mock.RedisString("acme"),
			"business_types": mock.RedisString("residential"),
		})))

	s := NewStoreForTest(c)
	m, err := s.HGetAll(context.Background(), "hr:tenant:7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["code"] != "acme" || m["business_types"] != "residential" {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestHGetAll_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "k")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.HGetAll(context.Background(), "k")
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestHGetAllMulti_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"f": mock.RedisString("a"),
			})),
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"f": mock.RedisString("b"),
			})),
		})

	s := NewStoreForTest(c)
	results, err := s.HGetAllMulti(context.Background(), []string{"k1", "k2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0]["f"] != "a" || results[1]["f"] != "b" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestHGetAllMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	results, err := s.HGetAllMulti(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil, got %v", results)
	}
}

func TestScan_MultiPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	first := true
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		DoAndReturn(func(_ context.Context, _ rueidis.Completed) rueidis.RedisResult {
			if first {
				first = false
				return mock.Result(mock.RedisArray(
					mock.RedisInt64(42), // more pages
					mock.RedisArray(mock.RedisString("hr:group:7:1")),
				))
			}
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0),
				mock.RedisArray(mock.RedisString("hr:group:7:2"), mock.RedisString("hr:group:7:1")),
			))
		}).Times(2)

	s := NewStoreForTest(c)
	keys, err := s.Scan(context.Background(), "hr:group:7:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(keys, []string{"hr:group:7:1", "hr:group:7:2"}) {
		t.Fatalf("keys = %v, want two distinct keys in scan order", keys)
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "k")).
		Return(mock.Result(mock.RedisBlobString("value")))

	s := NewStoreForTest(c)
	data, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("got %q, want value", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "k")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "k")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSet_NoExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "k", "v")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.SetWithTTL(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetWithTTL_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET" && cmd[1] == "k" && cmd[2] == "v" && slices.Contains(cmd, "EX")
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.SetWithTTL(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- index.go tests ---

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE" && cmd[1] == "hr:knowledge:idx" &&
				slices.Contains(cmd, "SORTABLE") && slices.Contains(cmd, "SEPARATOR")
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	idx, err := db.NewIndex("hr:knowledge:idx").
		Prefix("hr:item:knowledge:").
		TagList("roles", ",").
		Numeric("priority", true).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:     "test:idx",
		Prefixes: []string{"test:"},
		Fields:   []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
	}
	if err := s.CreateIndex(context.Background(), idx); !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestCreateIndex_InvalidDefinition(t *testing.T) {
	s := NewStoreForTest(nil) // rejected before reaching the client
	err := s.CreateIndex(context.Background(), &db.IndexDefinition{Name: "idx"})
	if err == nil || isDBError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "present")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("present"))))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "absent")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	if ok, err := s.IndexExists(context.Background(), "present"); err != nil || !ok {
		t.Errorf("present: ok=%v err=%v", ok, err)
	}
	if ok, err := s.IndexExists(context.Background(), "absent"); err != nil || ok {
		t.Errorf("absent: ok=%v err=%v", ok, err)
	}
}

func TestFieldArgs(t *testing.T) {
	tests := []struct {
		name  string
		field db.IndexField
		want  []string
	}{
		{"tag", db.IndexField{Name: "f", Type: db.IndexFieldTag}, []string{"f", "TAG"}},
		{"tag list", db.IndexField{Name: "f", Type: db.IndexFieldTag, TagSeparator: ","},
			[]string{"f", "TAG", "SEPARATOR", ","}},
		{"sortable numeric", db.IndexField{Name: "p", Type: db.IndexFieldNumeric, Sortable: true},
			[]string{"p", "NUMERIC", "SORTABLE"}},
		{"vector hnsw", db.IndexField{
			Name: "v", Type: db.IndexFieldVector, VectorDim: 256, VectorM: 16,
		}, []string{
			"v", "VECTOR", "HNSW", "8",
			"TYPE", "FLOAT32", "DIM", "256", "DISTANCE_METRIC", "COSINE", "M", "16",
		}},
		{"vector full", db.IndexField{
			Name: "v", Type: db.IndexFieldVector, VectorDim: 4,
			VectorDistance: db.DistanceIP, VectorM: 8, VectorEFConstruct: 100,
		}, []string{
			"v", "VECTOR", "HNSW", "10",
			"TYPE", "FLOAT32", "DIM", "4", "DISTANCE_METRIC", "IP", "M", "8", "EF_CONSTRUCTION", "100",
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := fieldArgs(&tc.field); !slices.Equal(got, tc.want) {
				t.Errorf("args = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCreateArgs_Prefix(t *testing.T) {
	def := &db.IndexDefinition{
		Name:     "idx",
		Prefixes: []string{"a:", "b:"},
		Fields:   []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
	}
	want := []string{"idx", "ON", "HASH", "PREFIX", "2", "a:", "b:", "SCHEMA", "f", "TAG"}
	if got := createArgs(def); !slices.Equal(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}
}

// --- search.go tests ---

func TestSearchKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" &&
				cmd[2] == "(@tenant:{7})=>[KNN 5 @fallback $BLOB AS __vector_score]" &&
				slices.Contains(cmd, "SORTBY")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("hr:item:procedure:1"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("0.1"),
				mock.RedisString("title"),
				mock.RedisString("hello"),
			),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:   "idx",
		VectorField: "fallback",
		Filters:     mustExpr(t, filter.MustMatchAny("tenant", "7")),
		Vector:      []float32{0.1, 0.2},
		K:           5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(result.Entries))
	}
	e := result.Entries[0]
	// cosine distance 0.1 maps to similarity 0.9
	if e.Score < 0.89 || e.Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", e.Score)
	}
	if _, ok := e.Fields["__vector_score"]; ok {
		t.Error("score field should be stripped from entry fields")
	}
	if e.Fields["title"] != "hello" {
		t.Errorf("title = %q", e.Fields["title"])
	}
}

func TestSearchKNN_DistanceClamped(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("k"),
			mock.RedisArray(mock.RedisString("__vector_score"), mock.RedisString("1.4")),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{IndexName: "idx", Vector: []float32{1}, K: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Entries[0].Score != 0 {
		t.Errorf("score = %f, want 0 for opposite vectors", result.Entries[0].Score)
	}
}

func TestSearchKNN_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}, K: 10})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Vector: []float32{0.1}, K: 10}); err == nil {
		t.Error("expected error for empty index name")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", K: 10}); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}}); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestSearchList_SortedByPriority(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			joined := strings.Join(cmd, " ")
			return cmd[0] == "FT.SEARCH" &&
				cmd[2] == "@has_keywords:{1}" &&
				strings.Contains(joined, "SORTBY priority DESC") &&
				strings.Contains(joined, "LIMIT 0 9")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("doc:1"),
			mock.RedisArray(mock.RedisString("priority"), mock.RedisString("9")),
			mock.RedisString("doc:2"),
			mock.RedisArray(mock.RedisString("priority"), mock.RedisString("1")),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchList(context.Background(), &db.ListQuery{
		IndexName:  "idx",
		Filters:    mustExpr(t, filter.MustMatchAny("has_keywords", "1")),
		SortBy:     "priority",
		Descending: true,
		Limit:      9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 2 || result.Entries[0].Key != "doc:1" {
		t.Fatalf("unexpected entries: %+v", result.Entries)
	}
}

func TestSearchList_Validation(t *testing.T) {
	s := &Store{}
	if _, err := s.SearchList(context.Background(), &db.ListQuery{IndexName: "idx"}); err == nil {
		t.Error("expected error for zero limit")
	}
}

// --- Filter building tests ---

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name    string
		must    []filter.Condition
		mustNot []filter.Condition
		want    string
	}{
		{"empty", nil, nil, ""},
		{"single tag", []filter.Condition{filter.MustMatchAny("tenant", "7")}, nil, "@tenant:{7}"},
		{
			"any of",
			[]filter.Condition{filter.MustMatchAny("roles", "__any", "all_users", "landlord")},
			nil,
			"@roles:{__any|all_users|landlord}",
		},
		{
			"combined",
			[]filter.Condition{filter.MustMatchAny("tenant", "__global", "7")},
			[]filter.Condition{filter.MustMatchAny("active", "0")},
			"@tenant:{__global|7} -@active:{0}",
		},
		{
			"escaped value",
			[]filter.Condition{filter.MustMatchAny("business_types", "long-term rental")},
			nil,
			`@business_types:{long\-term\ rental}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := filter.NewExpression(tc.must, tc.mustNot)
			if err != nil {
				t.Fatalf("NewExpression: %v", err)
			}
			if got := buildFilter(expr); got != tc.want {
				t.Errorf("buildFilter = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVectorBlob(t *testing.T) {
	blob := vectorBlob([]float32{1, -2})
	want := "\x00\x00\x80\x3f\x00\x00\x00\xc0"
	if blob != want {
		t.Errorf("blob = %q, want %q", blob, want)
	}
}

// --- helpers ---

func mustExpr(t *testing.T, must ...filter.Condition) filter.Expression {
	t.Helper()
	expr, err := filter.NewExpression(must, nil)
	if err != nil {
		t.Fatalf("NewExpression: %v", err)
	}
	return expr
}

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
