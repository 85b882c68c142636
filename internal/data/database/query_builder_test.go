package database

import (
	"reflect"
	"testing"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name      string
		opts      *ListQueryOptions
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "basic select",
			opts:      NewListQueryOptions("job_history"),
			wantQuery: `SELECT * FROM "job_history"`,
			wantArgs:  []any{},
		},
		{
			name:      "qualified columns",
			opts:      NewListQueryOptions("job_history", WithColumns("id", "job_history.status")),
			wantQuery: `SELECT "id", "job_history"."status" FROM "job_history"`,
			wantArgs:  []any{},
		},
		{
			name: "count only ignores ordering and paging",
			opts: NewListQueryOptions("job_history",
				WithCountOnly(),
				WithCondition(WhereCond("status", Equal, "failed")),
				WithOrderBy("completed_at", "DESC"),
				WithLimit(10),
			),
			wantQuery: `SELECT COUNT(*) FROM "job_history" WHERE "status" = $1`,
			wantArgs:  []any{"failed"},
		},
		{
			name: "conditions order and paging",
			opts: NewListQueryOptions("job_history",
				WithColumns("id"),
				WithCondition(WhereCond("type", Equal, "noop")),
				WithCondition(WhereCond("attempts", GreaterThanOrEqual, 2)),
				WithOrderBy("completed_at", "desc"),
				WithOrderBy("id", "sideways"),
				WithLimit(50),
				WithOffset(0),
			),
			wantQuery: `SELECT "id" FROM "job_history" WHERE "type" = $1 AND "attempts" >= $2` +
				` ORDER BY "completed_at" DESC, "id" LIMIT $3 OFFSET $4`,
			wantArgs: []any{"noop", 2, 50, 0},
		},
		{
			name: "in expands placeholders",
			opts: NewListQueryOptions("job_history",
				WithCondition(WhereCond("status", In, []string{"completed", "failed"})),
				WithCondition(WhereCond("type", Equal, "noop")),
			),
			wantQuery: `SELECT * FROM "job_history" WHERE "status" IN ($1, $2) AND "type" = $3`,
			wantArgs:  []any{"completed", "failed", "noop"},
		},
		{
			name: "empty in and blank field are skipped",
			opts: NewListQueryOptions("job_history",
				WithCondition(WhereCond("status", In, []string{})),
				WithCondition(WhereCond("", Equal, "x")),
				WithLimit(-5),
			),
			wantQuery: `SELECT * FROM "job_history"`,
			wantArgs:  []any{},
		},
		{
			name: "identifiers are quoted",
			opts: NewListQueryOptions(`job"history`,
				WithCondition(WhereCond(`type"; DROP TABLE x; --`, Equal, 1)),
			),
			wantQuery: `SELECT * FROM "job""history" WHERE "type""; DROP TABLE x; --" = $1`,
			wantArgs:  []any{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := BuildListQuery(tt.opts)
			if query != tt.wantQuery {
				t.Errorf("query = %q, want %q", query, tt.wantQuery)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}

func TestBuildListQuery_Nil(t *testing.T) {
	query, args := BuildListQuery(nil)
	if query != "" || args != nil {
		t.Errorf("expected empty result, got %q %v", query, args)
	}
}
