package wialon

import (
	"context"
	"encoding/json"
	"fmt"
)

// Unit data flags, per the remote API's bitmask scheme.
const (
	flagUnitBase        = 0x00000001
	flagUnitImage       = 0x00000200
	flagUnitLastMessage = 0x00000400
	flagUnitSensors     = 0x00001000

	// FlagsMinimal requests only the base record (id and name).
	FlagsMinimal = flagUnitBase
	// FlagsRich additionally requests the last position, sensors and icon.
	FlagsRich = flagUnitBase | flagUnitImage | flagUnitLastMessage | flagUnitSensors
)

// Position is a unit's last known fix. A Position is only attached to a
// Unit when latitude, longitude and timestamp are all present; otherwise
// the whole field is dropped during decoding.
type Position struct {
	Lat    float64
	Lng    float64
	Speed  float64
	Course *float64
	Time   int64 // seconds since epoch
}

// Unit is a tracked vehicle as this client needs it: id, display name and
// an optional last position. The raw upstream record is retained opaquely
// for callers that need fields this client does not model.
type Unit struct {
	ID       int64
	Name     string
	Position *Position
	Raw      json.RawMessage
}

// unitWire mirrors the upstream record. Position sub-fields are pointers so
// a partially-populated fix can be told apart from a zero-valued one.
type unitWire struct {
	ID   int64  `json:"id"`
	Name string `json:"nm"`
	Pos  *struct {
		Lng    *float64 `json:"x"`
		Lat    *float64 `json:"y"`
		Speed  *float64 `json:"s"`
		Course *float64 `json:"c"`
		Time   *int64   `json:"t"`
	} `json:"pos"`
}

// UnmarshalJSON normalizes an upstream unit record. Positions missing any
// of latitude, longitude or timestamp are discarded entirely.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var w unitWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	u.ID = w.ID
	u.Name = w.Name
	u.Raw = append(u.Raw[:0], data...)
	u.Position = nil

	if w.Pos != nil && w.Pos.Lat != nil && w.Pos.Lng != nil && w.Pos.Time != nil {
		p := &Position{Lat: *w.Pos.Lat, Lng: *w.Pos.Lng, Time: *w.Pos.Time, Course: w.Pos.Course}
		if w.Pos.Speed != nil {
			p.Speed = *w.Pos.Speed
		}
		u.Position = p
	}
	return nil
}

type searchSpec struct {
	ItemsType     string `json:"itemsType"`
	PropName      string `json:"propName"`
	PropValueMask string `json:"propValueMask"`
	SortType      string `json:"sortType"`
}

type searchItemsParams struct {
	Spec  searchSpec `json:"spec"`
	Force int        `json:"force"`
	Flags int        `json:"flags"`
	From  int        `json:"from"`
	To    int        `json:"to"`
}

// UnitRepository retrieves the units visible to the current session.
type UnitRepository struct {
	tr    *Transport
	flags int
}

// NewUnitRepository creates a repository requesting rich unit data. Pass
// rich=false to fetch only the base record (no positions).
func NewUnitRepository(tr *Transport, rich bool) *UnitRepository {
	flags := FlagsRich
	if !rich {
		flags = FlagsMinimal
	}
	return &UnitRepository{tr: tr, flags: flags}
}

// Units fetches every unit in the session's account. An account with no
// units yields an empty slice, not an error. Requires an active session.
func (r *UnitRepository) Units(ctx context.Context) ([]Unit, error) {
	if r.tr.SessionID() == "" {
		return nil, ErrNotAuthenticated
	}

	params := searchItemsParams{
		Spec: searchSpec{
			ItemsType:     "avl_unit",
			PropName:      "sys_name",
			PropValueMask: "*",
			SortType:      "sys_name",
		},
		Force: 1,
		Flags: r.flags,
		From:  0,
		To:    0,
	}

	raw, err := r.tr.Call(ctx, "core/search_items", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []Unit `json:"items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("wialon: decode core/search_items response: %w", err)
	}
	if resp.Items == nil {
		return []Unit{}, nil
	}
	return resp.Items, nil
}

// UnitByID fetches a single unit. Returns (nil, nil) when the id does not
// resolve to a unit in the session's account.
func (r *UnitRepository) UnitByID(ctx context.Context, id int64) (*Unit, error) {
	if r.tr.SessionID() == "" {
		return nil, ErrNotAuthenticated
	}

	raw, err := r.tr.Call(ctx, "core/search_item", map[string]int64{
		"id":    id,
		"flags": int64(r.flags),
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Item *Unit `json:"item"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("wialon: decode core/search_item response: %w", err)
	}
	return resp.Item, nil
}
