package minidrive

import (
	"encoding/csv"
	"github.com/cgl/minidrive/minican"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"io"
	"strings"
)

// LoadRecording reads control vectors back out of a recorded CSV drive.
// Column indexes are zero-based; rows before startRow are skipped. A row
// with an empty data cell ends the recording. Rows carrying CAN ids other
// than the drive frames are skipped.
func LoadRecording(r io.Reader, idCol, dataCol, startRow int) ([]ControlVector, error) {
	if idCol < 0 || dataCol < 0 || startRow < 0 {
		return nil, errors.New("column indexes and start row must not be negative")
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []ControlVector
	row := -1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "unable to read recording")
		}
		row++
		if row < startRow {
			continue
		}
		if idCol >= len(rec) || dataCol >= len(rec) {
			return nil, errors.Errorf("row %v has %v columns, need id column %v and data column %v",
				row, len(rec), idCol, dataCol)
		}

		dataText := strings.TrimSpace(rec[dataCol])
		if dataText == "" {
			// recordings end with a blank data cell
			break
		}

		id, err := ParseID(rec[idCol])
		if err != nil {
			return nil, errors.Wrapf(err, "row %v", row)
		}
		layout, ok := minican.LayoutForID(id)
		if !ok {
			log.WithField("canID", rec[idCol]).WithField("row", row).
				Debug("skipping non-drive row")
			continue
		}

		data, err := ParseData(dataText)
		if err != nil {
			return nil, errors.Wrapf(err, "row %v", row)
		}
		if len(data) != 8 {
			return nil, errors.Errorf("row %v: drive frames carry 8 data bytes, got %v", row, len(data))
		}
		var p [8]byte
		copy(p[:], data)
		c, err := layout.Decode(p)
		if err != nil {
			return nil, errors.Wrapf(err, "row %v", row)
		}
		out = append(out, ControlVector{SpeedMms: c.SpeedMms, AngleDeg: c.AngleDeg, Gear: c.Gear})
	}
	return out, nil
}
