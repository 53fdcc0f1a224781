package repl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgtype"
)

// decoder turns pgoutput messages of one table into RowChanges
type decoder struct {
	relations       map[uint32]*pglogrepl.RelationMessageV2
	typeMap         *pgtype.Map
	table           string
	idColumn        string
	confirmedColumn string
}

func newDecoder(cfg Config) *decoder {
	return &decoder{
		relations:       make(map[uint32]*pglogrepl.RelationMessageV2),
		typeMap:         pgtype.NewMap(),
		table:           cfg.Table,
		idColumn:        cfg.IdColumn,
		confirmedColumn: cfg.ConfirmedColumn,
	}
}

// decode returns nil for messages that carry no row of the watched table.
func (d *decoder) decode(walData []byte) (*RowChange, error) {
	logicalMsg, err := pglogrepl.ParseV2(walData, false)
	if err != nil {
		return nil, fmt.Errorf("parse logical replication message: %w", err)
	}

	switch msg := logicalMsg.(type) {
	case *pglogrepl.RelationMessageV2:
		d.relations[msg.RelationID] = msg
		return nil, nil
	case *pglogrepl.InsertMessageV2:
		rel, err := d.relation(msg.RelationID)
		if rel == nil || err != nil {
			return nil, err
		}
		return d.rowChange(Insert, msg.Xid, rel, msg.Tuple, nil)
	case *pglogrepl.UpdateMessageV2:
		rel, err := d.relation(msg.RelationID)
		if rel == nil || err != nil {
			return nil, err
		}
		return d.rowChange(Update, msg.Xid, rel, msg.NewTuple, msg.OldTuple)
	default:
		return nil, nil
	}
}

// relation returns nil without error for relations of other tables.
func (d *decoder) relation(id uint32) (*pglogrepl.RelationMessageV2, error) {
	rel, ok := d.relations[id]
	if !ok {
		return nil, fmt.Errorf("unknown relation ID %d", id)
	}
	if rel.Namespace+"."+rel.RelationName != d.table {
		return nil, nil
	}
	return rel, nil
}

func (d *decoder) rowChange(op Operation, xid uint32, rel *pglogrepl.RelationMessageV2,
	tuple, oldTuple *pglogrepl.TupleData) (*RowChange, error) {
	values, err := d.decodeTuple(tuple, rel)
	if err != nil {
		return nil, fmt.Errorf("decode tuple: %w", err)
	}
	id, err := toInt64(values[d.idColumn])
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", d.idColumn, err)
	}
	change := &RowChange{
		Operation: op,
		Id:        id,
		Confirmed: values[d.confirmedColumn] != nil,
		Timestamp: time.Now(),
		Xid:       xid,
	}
	if oldTuple != nil {
		old, err := d.decodeTuple(oldTuple, rel)
		if err != nil {
			return nil, fmt.Errorf("decode old tuple: %w", err)
		}
		if _, ok := old[d.confirmedColumn]; ok {
			was := old[d.confirmedColumn] != nil
			change.WasConfirmed = &was
		}
	}
	return change, nil
}

// decodeTuple keeps only the id and confirmation columns
func (d *decoder) decodeTuple(tuple *pglogrepl.TupleData, rel *pglogrepl.RelationMessageV2) (map[string]any, error) {
	values := make(map[string]any, 2)
	if tuple == nil {
		return values, nil
	}
	for idx, col := range tuple.Columns {
		if idx >= len(rel.Columns) {
			break
		}
		colName := rel.Columns[idx].Name
		if colName != d.idColumn && colName != d.confirmedColumn {
			continue
		}
		switch col.DataType {
		case 'n':
			values[colName] = nil
		case 't':
			val, err := d.decodeTextColumnData(col.Data, rel.Columns[idx].DataType)
			if err != nil {
				return nil, fmt.Errorf("decode column %s: %w", colName, err)
			}
			values[colName] = val
		}
	}
	return values, nil
}

func (d *decoder) decodeTextColumnData(data []byte, dataType uint32) (any, error) {
	if dt, ok := d.typeMap.TypeForOID(dataType); ok {
		return dt.Codec.DecodeValue(d.typeMap, dataType, pgtype.TextFormatCode, data)
	}
	return string(data), nil
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int32:
		return int64(val), nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	case nil:
		return 0, fmt.Errorf("missing value")
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}
