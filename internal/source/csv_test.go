package source

import (
	"reflect"
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	in := strings.NewReader(
		"episode_order,PATID,ADMITDATE_DT,DXCODE1\n" +
			"e1,p1,2020-01-01, I10 \n" +
			"e2,p2,2020-02-01,\n")

	tbl, err := ReadCSV(in, "dad", nil)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", tbl.NumRows())
	}
	if v, _ := tbl.Value(0, "DXCODE1"); v != "I10" {
		t.Errorf("cell = %q, want trimmed I10", v)
	}
	if _, ok := tbl.Value(1, "DXCODE1"); ok {
		t.Error("empty cell must be null")
	}
}

func TestReadCSVProjection(t *testing.T) {
	in := strings.NewReader(
		"id,junk,code\n" +
			"r1,xxx,A00\n")

	tbl, err := ReadCSV(in, "t", []string{"code", "id", "absent"})
	if err != nil {
		t.Fatal(err)
	}
	if got := tbl.Columns(); !reflect.DeepEqual(got, []string{"code", "id"}) {
		t.Errorf("columns = %v", got)
	}
	if tbl.HasColumn("junk") {
		t.Error("unwanted column was materialized")
	}
}

func TestReadCSVPadsShortRows(t *testing.T) {
	in := strings.NewReader(
		"a,b,c\n" +
			"1,2\n")

	tbl, err := ReadCSV(in, "t", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tbl.Value(0, "c"); ok {
		t.Error("padded cell must be null")
	}
	if v, _ := tbl.Value(0, "b"); v != "2" {
		t.Errorf("cell = %q, want 2", v)
	}
}

func TestReadCSVEmptyInputFails(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader(""), "t", nil); err == nil {
		t.Fatal("missing header must be an error")
	}
}
