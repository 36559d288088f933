// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	goburrow "github.com/goburrow/modbus"
	"github.com/tbrandon/mbserver"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/crc"
)

func withCRC(b ...byte) []byte {
	return crc.Append(append([]byte(nil), b...))
}

func TestEncodeWriteMultipleRegisters(t *testing.T) {
	req := NewWriteMultipleRegisters(1, 114, []uint16{10, 20, 30, 0, 1})
	raw, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := withCRC(0x01, 0x10, 0x00, 0x72, 0x00, 0x05, 0x0A,
		0x00, 0x0A, 0x00, 0x14, 0x00, 0x1E, 0x00, 0x00, 0x00, 0x01)
	if !bytes.Equal(raw, want) {
		t.Errorf("Request mismatch.\nWant: % X\nGot:  % X", want, raw)
	}
}

func TestEncodeReadHoldingRegisters(t *testing.T) {
	raw, err := NewReadHoldingRegisters(1, 0x6B, 3).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x6B, 0x00, 0x03, 0x74, 0x17}
	if !bytes.Equal(raw, want) {
		t.Errorf("Request mismatch.\nWant: % X\nGot:  % X", want, raw)
	}
}

func TestEncodeLimits(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
	}{
		{"Read125", NewReadHoldingRegisters(1, 0, 125), false},
		{"Read126", NewReadHoldingRegisters(1, 0, 126), true},
		{"Read0", NewReadInputRegisters(1, 0, 0), true},
		{"ReadPastEnd", NewReadHoldingRegisters(1, 0xFFFF, 2), true},
		{"Write123", NewWriteMultipleRegisters(1, 0, make([]uint16, 123)), false},
		{"Write124", NewWriteMultipleRegisters(1, 0, make([]uint16, 124)), true},
		{"WriteEmpty", NewWriteMultipleRegisters(1, 0, nil), true},
		{"WriteSingle", NewWriteSingleRegister(1, 0xFFFF, 7), false},
		{"Unsupported", &Request{SlaveID: 1, FunctionCode: 0x2B}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Encode()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Encode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, modbus.ErrEncoding) {
				t.Errorf("Encode() error = %v, want ErrEncoding", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
	}{
		{"Read125", NewReadHoldingRegisters(1, 0, 125), false},
		{"Read126", NewReadHoldingRegisters(1, 0, 126), true},
		{"Slave247", NewWriteSingleRegister(247, 0, 1), false},
		{"Slave248", NewWriteSingleRegister(248, 0, 1), true},
		{"BroadcastWrite", NewWriteMultipleRegisters(0, 0, []uint16{1}), false},
		{"BroadcastRead", NewReadHoldingRegisters(0, 0, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, modbus.ErrInvalidArgument) {
				t.Errorf("Validate() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	requests := []*Request{
		NewReadHoldingRegisters(1, 114, 5),
		NewReadHoldingRegisters(247, 0, 125),
		NewReadInputRegisters(17, 0xFF00, 1),
		NewWriteSingleRegister(3, 0x0001, 0xBEEF),
		NewWriteMultipleRegisters(1, 114, []uint16{10, 20, 30, 0, 1}),
		NewWriteMultipleRegisters(0, 0, make([]uint16, 123)),
	}

	for _, req := range requests {
		raw, err := req.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v) failed: %v", req, err)
		}
		got, err := DecodeRequest(raw)
		if err != nil {
			t.Fatalf("DecodeRequest(% X) failed: %v", raw, err)
		}
		if !reflect.DeepEqual(got, req) {
			t.Errorf("round trip mismatch.\nWant: %+v\nGot:  %+v", req, got)
		}
	}
}

func TestDecodeDetectsBitFlips(t *testing.T) {
	raw, err := NewWriteMultipleRegisters(1, 114, []uint16{10, 20, 30, 0, 1}).Encode()
	if err != nil {
		t.Fatal(err)
	}

	for bit := 0; bit < len(raw)*8; bit++ {
		corrupted := append([]byte(nil), raw...)
		corrupted[bit/8] ^= 1 << (bit % 8)
		_, err := DecodeRequest(corrupted)
		if !errors.Is(err, modbus.ErrChecksum) {
			t.Errorf("bit %d: error = %v, want ErrChecksum", bit, err)
		}
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		want    *Response
		wantErr error
	}{
		{
			name: "ReadHoldingRegisters",
			raw:  withCRC(0x01, 0x03, 0x04, 0x00, 0x0A, 0x01, 0x02),
			want: &Response{SlaveID: 1, FunctionCode: 0x03, Registers: []uint16{10, 0x0102}},
		},
		{
			name: "WriteMultipleConfirmation",
			raw:  withCRC(0x01, 0x10, 0x00, 0x72, 0x00, 0x05),
			want: &Response{SlaveID: 1, FunctionCode: 0x10, Address: 114, Value: 5},
		},
		{
			name: "Exception",
			raw:  withCRC(0x01, 0x83, 0x02),
			want: &Response{SlaveID: 1, FunctionCode: 0x83, ExceptionCode: modbus.ExceptionCodeIllegalDataAddress},
		},
		{"TooShort", []byte{0x01, 0x03, 0x00}, nil, modbus.ErrMalformedFrame},
		{"BadCRC", []byte{0x01, 0x03, 0x02, 0xAA, 0xBB, 0xFF, 0xFF}, nil, modbus.ErrChecksum},
		{"ByteCountMismatch", withCRC(0x01, 0x03, 0x04, 0x00, 0x0A), nil, modbus.ErrMalformedFrame},
		{"OddByteCount", withCRC(0x01, 0x03, 0x01, 0x0A), nil, modbus.ErrMalformedFrame},
		{"LongException", withCRC(0x01, 0x83, 0x02, 0x00), nil, modbus.ErrMalformedFrame},
		{"ShortConfirmation", withCRC(0x01, 0x06, 0x00, 0x01), nil, modbus.ErrMalformedFrame},
		{"UnsupportedFunction", withCRC(0x01, 0x2B, 0x0E), nil, modbus.ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeResponse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeResponse() failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeResponse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExceptionResponseErr(t *testing.T) {
	resp, err := DecodeResponse(withCRC(0x01, 0x83, 0x02))
	if err != nil {
		t.Fatal(err)
	}
	exc, ok := modbus.AsException(resp.Err())
	if !ok || exc.Kind() != modbus.IllegalDataAddress {
		t.Errorf("Err() = %v, want illegal data address exception", resp.Err())
	}
}

func TestMatch(t *testing.T) {
	read := NewReadHoldingRegisters(1, 114, 2)
	write := NewWriteSingleRegister(1, 5, 0x1234)
	multi := NewWriteMultipleRegisters(1, 114, []uint16{1, 2, 3})

	tests := []struct {
		name    string
		req     *Request
		resp    *Response
		wantErr bool
	}{
		{"ReadOK", read, &Response{SlaveID: 1, FunctionCode: 0x03, Registers: []uint16{1, 2}}, false},
		{"OtherSlave", read, &Response{SlaveID: 2, FunctionCode: 0x03, Registers: []uint16{1, 2}}, true},
		{"OtherFunction", read, &Response{SlaveID: 1, FunctionCode: 0x04, Registers: []uint16{1, 2}}, true},
		{"ShortRead", read, &Response{SlaveID: 1, FunctionCode: 0x03, Registers: []uint16{1}}, true},
		{"Exception", read, &Response{SlaveID: 1, FunctionCode: 0x83, ExceptionCode: 2}, false},
		{"ExceptionOtherFunction", read, &Response{SlaveID: 1, FunctionCode: 0x84, ExceptionCode: 2}, true},
		{"EchoOK", write, &Response{SlaveID: 1, FunctionCode: 0x06, Address: 5, Value: 0x1234}, false},
		{"EchoWrongValue", write, &Response{SlaveID: 1, FunctionCode: 0x06, Address: 5, Value: 0x1235}, true},
		{"MultiOK", multi, &Response{SlaveID: 1, FunctionCode: 0x10, Address: 114, Value: 3}, false},
		{"MultiWrongQuantity", multi, &Response{SlaveID: 1, FunctionCode: 0x10, Address: 114, Value: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Match(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Match() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, modbus.ErrMismatchedResponse) {
				t.Errorf("Match() error = %v, want ErrMismatchedResponse", err)
			}
		})
	}
}

func TestADUVerify(t *testing.T) {
	req := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03}}
	if err := req.Verify(&ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x83}}); err != nil {
		t.Errorf("Verify() exception reply: %v", err)
	}
	if err := req.Verify(&ApplicationDataUnit{SlaveID: 9, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03}}); !errors.Is(err, modbus.ErrMismatchedResponse) {
		t.Errorf("Verify() other slave: %v", err)
	}
}

func TestResponseEncodeRoundTrip(t *testing.T) {
	responses := []*Response{
		{SlaveID: 1, FunctionCode: 0x03, Registers: []uint16{10, 20, 30, 0, 1}},
		{SlaveID: 1, FunctionCode: 0x04, Registers: []uint16{0xFFFF}},
		{SlaveID: 1, FunctionCode: 0x06, Address: 7, Value: 99},
		{SlaveID: 1, FunctionCode: 0x10, Address: 114, Value: 5},
		{SlaveID: 1, FunctionCode: 0x90, ExceptionCode: modbus.ExceptionCodeServerDeviceBusy},
	}
	for _, want := range responses {
		raw, err := want.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v) failed: %v", want, err)
		}
		got, err := DecodeResponse(raw)
		if err != nil {
			t.Fatalf("DecodeResponse(% X) failed: %v", raw, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip mismatch.\nWant: %+v\nGot:  %+v", want, got)
		}
	}
}

// The frames must be byte-for-byte what other Modbus stacks produce and accept.
func TestInteroperability(t *testing.T) {
	req := NewWriteMultipleRegisters(1, 114, []uint16{10, 20, 30, 0, 1})
	raw, err := req.Encode()
	if err != nil {
		t.Fatal(err)
	}
	pdu, err := req.PDU()
	if err != nil {
		t.Fatal(err)
	}

	handler := goburrow.NewRTUClientHandler("")
	handler.SlaveId = 1
	want, err := handler.Encode(&goburrow.ProtocolDataUnit{FunctionCode: pdu.FunctionCode, Data: pdu.Data})
	if err != nil {
		t.Fatalf("goburrow encode failed: %v", err)
	}
	if !bytes.Equal(raw, want) {
		t.Errorf("goburrow frame mismatch.\nWant: % X\nGot:  % X", want, raw)
	}

	frame, err := mbserver.NewRTUFrame(raw)
	if err != nil {
		t.Fatalf("mbserver rejected frame: %v", err)
	}
	if frame.Address != 1 || frame.Function != modbus.FuncCodeWriteMultipleRegisters || !bytes.Equal(frame.Data, pdu.Data) {
		t.Errorf("mbserver parsed %+v", frame)
	}
}
