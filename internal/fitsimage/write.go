// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fitsimage

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Save writes img as a FITS primary HDU to path. The write is atomic from
// the caller's perspective: data lands in a temp file in the same
// directory and is renamed into place. A HISTORY card is appended
// describing this save if producedBy is non-empty.
func Save(img *Image, path string, producedBy string) (err error) {
	if producedBy != "" {
		img.AppendHistory(producedBy)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fits-tmp-*")
	if err != nil {
		return fmt.Errorf("fits save %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	if err = writeHeader(w, img); err != nil {
		return err
	}
	if err = writeData(w, img); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("fits save %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("fits save %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("fits save %s: %w", path, err)
	}
	return nil
}

func writeHeader(w *bufio.Writer, img *Image) error {
	var cards []string
	card := func(s string) { cards = append(cards, padCard(s)) }

	card(fmt.Sprintf("%-8s= %20s", "SIMPLE", "T"))
	// Data is always held and written in-memory as float32, regardless of
	// the bit depth it was loaded from, so BITPIX is always -32 on save.
	card(fmt.Sprintf("%-8s= %20d", "BITPIX", -32))
	card(fmt.Sprintf("%-8s= %20d", "NAXIS", len(img.Naxisn)))
	for i, n := range img.Naxisn {
		card(fmt.Sprintf("%-8s= %20d", fmt.Sprintf("NAXIS%d", i+1), n))
	}
	if img.Bzero != 0 {
		card(fmt.Sprintf("%-8s= %20s", "BZERO", formatFloat(float64(img.Bzero))))
	}
	if img.Bscale != 1 {
		card(fmt.Sprintf("%-8s= %20s", "BSCALE", formatFloat(float64(img.Bscale))))
	}
	if img.Exposure != 0 {
		card(fmt.Sprintf("%-8s= %20s", "EXPOSURE", formatFloat(float64(img.Exposure))))
	}

	for _, k := range sortedKeys(img.Header.Bools) {
		v := "F"
		if img.Header.Bools[k] {
			v = "T"
		}
		card(fmt.Sprintf("%-8s= %20s", k, v))
	}
	for _, k := range sortedKeys(img.Header.Ints) {
		card(fmt.Sprintf("%-8s= %20d", k, img.Header.Ints[k]))
	}
	for _, k := range sortedFloatKeys(img.Header.Floats) {
		card(fmt.Sprintf("%-8s= %20s", k, formatFloat(img.Header.Floats[k])))
	}
	for _, k := range sortedStringKeys(img.Header.Strings) {
		card(fmt.Sprintf("%-8s= '%-8s'", k, img.Header.Strings[k]))
	}
	for _, k := range sortedStringKeys(img.Header.Dates) {
		card(fmt.Sprintf("%-8s= '%s'", k, img.Header.Dates[k]))
	}
	for _, c := range img.Header.Comments {
		card("COMMENT " + c)
	}
	for _, h := range img.Header.History {
		card("HISTORY " + h)
	}
	card("END")

	blob := make([]byte, 0, len(cards)*headerLineSize)
	for _, c := range cards {
		blob = append(blob, c...)
	}
	pad := fitsBlockSize - (len(blob) % fitsBlockSize)
	if pad < fitsBlockSize {
		for i := 0; i < pad; i++ {
			blob = append(blob, ' ')
		}
	}
	_, err := w.Write(blob)
	return err
}

func padCard(s string) string {
	if len(s) > headerLineSize {
		return s[:headerLineSize]
	}
	for len(s) < headerLineSize {
		s += " "
	}
	return s
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.10G", v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string { return sortedKeys(m) }
func sortedStringKeys(m map[string]string) []string { return sortedKeys(m) }

func writeData(w *bufio.Writer, img *Image) error {
	buf := make([]byte, 0, bufLen)
	written := int64(0)
	for _, v := range img.Data {
		bits := math.Float32bits(v)
		buf = append(buf, byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
		if len(buf) >= bufLen {
			if _, err := w.Write(buf); err != nil {
				return err
			}
			written += int64(len(buf))
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := w.Write(buf); err != nil {
			return err
		}
		written += int64(len(buf))
	}
	pad := fitsBlockSize - int(written%fitsBlockSize)
	if pad < fitsBlockSize {
		zeros := make([]byte, pad)
		if _, err := w.Write(zeros); err != nil {
			return err
		}
	}
	return nil
}
