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

// Package logging provides the log writer handed to the engine. It writes to
// stdout, and optionally to a file as well. It does not add prefixes or force newlines.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

type Writer struct {
	mutex  sync.Mutex
	out    io.Writer
	file   *bufio.Writer // optional additional file to log into
	fileOS *os.File
}

// Creates a writer logging to out, typically os.Stdout
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Enables logging to file, replacing a previously set file
func (w *Writer) AlsoToFile(fileName string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if err := w.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	w.fileOS, w.file = f, bufio.NewWriter(f)
	return nil
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	n, err = w.out.Write(p)
	if err != nil || w.file == nil {
		return n, err
	}
	return w.file.Write(p)
}

func (w *Writer) Printf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(w, format, args...)
}

func (w *Writer) Println(args ...interface{}) (n int, err error) {
	return fmt.Fprintln(w, args...)
}

// Flushes the log file to disk
func (w *Writer) Sync() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Flush(); err != nil {
		return err
	}
	return w.fileOS.Sync()
}

func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.closeFile()
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Flush()
	if cerr := w.fileOS.Close(); err == nil {
		err = cerr
	}
	w.file, w.fileOS = nil, nil
	return err
}

// Logs the message, closes the log file and exits with status 1
func (w *Writer) Fatalf(format string, args ...interface{}) {
	w.Printf(format, args...)
	w.Close()
	os.Exit(1)
}
