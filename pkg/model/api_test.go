package model

import "testing"

func TestListOptions_Clamp(t *testing.T) {
	cases := map[string]struct {
		in          ListOptions
		limit, skip int
	}{
		"zero value":      {ListOptions{}, DefaultPageSize, 0},
		"negative limit":  {ListOptions{Limit: -1}, DefaultPageSize, 0},
		"above page cap":  {ListOptions{Limit: 5000}, MaxPageSize, 0},
		"negative offset": {ListOptions{Limit: 7, Offset: -40}, 7, 0},
		"untouched":       {ListOptions{Limit: 35, Offset: 70, Status: "Done"}, 35, 70},
	}
	for name, c := range cases {
		o := c.in
		o.Clamp()
		if o.Limit != c.limit || o.Offset != c.skip {
			t.Errorf("%s: got limit=%d offset=%d, want %d/%d", name, o.Limit, o.Offset, c.limit, c.skip)
		}
		if o.Status != c.in.Status {
			t.Errorf("%s: Clamp changed status filter", name)
		}
	}
}

func TestListOptions_Page(t *testing.T) {
	o := ListOptions{Limit: 10, Offset: 20}
	if pg := o.Page(10, 31); !pg.HasMore || pg.Total != 31 || pg.Offset != 20 {
		t.Errorf("middle page = %+v", pg)
	}
	if pg := o.Page(1, 21); pg.HasMore {
		t.Errorf("last page reports more: %+v", pg)
	}
	if pg := DefaultListOptions().Page(0, 0); pg.HasMore || pg.Limit != DefaultPageSize {
		t.Errorf("empty page = %+v", pg)
	}
}
