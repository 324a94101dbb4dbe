package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON columns are stored as structured values; these helpers implement
// driver.Valuer and sql.Scanner for them.

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	switch t := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(t) == 0 {
			return nil
		}
		return json.Unmarshal(t, dst)
	case string:
		if t == "" {
			return nil
		}
		return json.Unmarshal([]byte(t), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
