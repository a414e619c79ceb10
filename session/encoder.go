package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sessionFormatVersionCurrent = 2
	sessionFormatVersionV1      = 1
)

// CurrentSchemaVersion is the binary format version Encode writes.
const CurrentSchemaVersion uint8 = sessionFormatVersionCurrent

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.ActorID) > 255 {
		return nil, errors.New("actorID too long")
	}
	buf.WriteByte(byte(len(s.ActorID)))
	buf.WriteString(s.ActorID)

	if len(s.MunicipalityID) > 255 {
		return nil, errors.New("municipalityID too long")
	}
	buf.WriteByte(byte(len(s.MunicipalityID)))
	buf.WriteString(s.MunicipalityID)

	if s.Staff {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	// Credentials are signed tokens and routinely exceed 255 bytes, so
	// their length prefix is 16-bit.
	if len(s.Credential) > 65535 {
		return nil, errors.New("credential too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.Credential))); err != nil {
		return nil, err
	}
	buf.WriteString(s.Credential)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent &&
		version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{SchemaVersion: version}

	actorLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	actorID := make([]byte, actorLen)
	if _, err := io.ReadFull(reader, actorID); err != nil {
		return nil, err
	}
	s.ActorID = string(actorID)

	munLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	municipalityID := make([]byte, munLen)
	if _, err := io.ReadFull(reader, municipalityID); err != nil {
		return nil, err
	}
	s.MunicipalityID = string(municipalityID)

	staff, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if staff > 1 {
		return nil, errors.New("invalid staff flag")
	}
	s.Staff = staff == 1

	if version == sessionFormatVersionCurrent {
		var credLen uint16
		if err := binary.Read(reader, binary.BigEndian, &credLen); err != nil {
			return nil, err
		}
		credential := make([]byte, credLen)
		if _, err := io.ReadFull(reader, credential); err != nil {
			return nil, err
		}
		s.Credential = string(credential)
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	return s, nil
}
