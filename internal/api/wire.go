package api

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers follow sessionkeeper.v1; they must never be reused.

func appendCredentials(b []byte, username, password, deviceLabel string) []byte {
	b = appendString(b, 1, username)
	b = appendString(b, 2, password)
	return appendString(b, 3, deviceLabel)
}

func consumeCredentials(num protowire.Number, typ protowire.Type, b []byte, username, password, deviceLabel *string) (int, error) {
	switch num {
	case 1:
		return consumeString(typ, b, username)
	case 2:
		return consumeString(typ, b, password)
	case 3:
		return consumeString(typ, b, deviceLabel)
	}
	return 0, nil
}

func (m *RegisterRequest) appendWire(b []byte) ([]byte, error) {
	return appendCredentials(b, m.Username, m.Password, m.DeviceLabel), nil
}

func (m *RegisterRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return consumeCredentials(num, typ, b, &m.Username, &m.Password, &m.DeviceLabel)
}

func (m *LoginRequest) appendWire(b []byte) ([]byte, error) {
	return appendCredentials(b, m.Username, m.Password, m.DeviceLabel), nil
}

func (m *LoginRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return consumeCredentials(num, typ, b, &m.Username, &m.Password, &m.DeviceLabel)
}

func (m *RefreshRequest) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.AccessToken)
	b = appendString(b, 2, m.RefreshToken)
	return appendString(b, 3, m.DeviceLabel), nil
}

func (m *RefreshRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeString(typ, b, &m.AccessToken)
	case 2:
		return consumeString(typ, b, &m.RefreshToken)
	case 3:
		return consumeString(typ, b, &m.DeviceLabel)
	}
	return 0, nil
}

func (m *TokenResponse) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.AccessToken)
	b = appendString(b, 2, m.RefreshToken)
	b = appendString(b, 3, m.TokenType)
	b, err := appendTime(b, 4, m.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return appendTime(b, 5, m.RefreshExpiresAt)
}

func (m *TokenResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeString(typ, b, &m.AccessToken)
	case 2:
		return consumeString(typ, b, &m.RefreshToken)
	case 3:
		return consumeString(typ, b, &m.TokenType)
	case 4:
		return consumeTime(typ, b, &m.ExpiresAt)
	case 5:
		return consumeTime(typ, b, &m.RefreshExpiresAt)
	}
	return 0, nil
}

func (m *LogoutRequest) appendWire(b []byte) ([]byte, error) {
	return appendString(b, 1, m.RefreshToken), nil
}

func (m *LogoutRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return consumeString(typ, b, &m.RefreshToken)
	}
	return 0, nil
}

func (m *LogoutAllResponse) appendWire(b []byte) ([]byte, error) {
	return appendInt64(b, 1, m.Revoked), nil
}

func (m *LogoutAllResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return consumeInt64(typ, b, &m.Revoked)
	}
	return 0, nil
}

func (m *Session) appendWire(b []byte) ([]byte, error) {
	var err error
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.DeviceLabel)
	if b, err = appendTime(b, 3, m.CreatedAt); err != nil {
		return nil, err
	}
	if b, err = appendTime(b, 4, m.LastUsedAt); err != nil {
		return nil, err
	}
	if b, err = appendTime(b, 5, m.ExpiresAt); err != nil {
		return nil, err
	}
	return appendString(b, 6, m.State), nil
}

func (m *Session) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeString(typ, b, &m.ID)
	case 2:
		return consumeString(typ, b, &m.DeviceLabel)
	case 3:
		return consumeTime(typ, b, &m.CreatedAt)
	case 4:
		return consumeTime(typ, b, &m.LastUsedAt)
	case 5:
		return consumeTime(typ, b, &m.ExpiresAt)
	case 6:
		return consumeString(typ, b, &m.State)
	}
	return 0, nil
}

func (m *ListSessionsResponse) appendWire(b []byte) ([]byte, error) {
	var err error
	for i := range m.Sessions {
		if b, err = appendMessage(b, 1, &m.Sessions[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (m *ListSessionsResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num != 1 {
		return 0, nil
	}
	raw, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	var s Session
	if err := decodeWire(raw, &s); err != nil {
		return 0, err
	}
	m.Sessions = append(m.Sessions, s)
	return n, nil
}

func (m *WhoAmIResponse) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.UserID)
	b = appendString(b, 2, m.Username)
	b = appendString(b, 3, m.Role)
	return appendTime(b, 4, m.ExpiresAt)
}

func (m *WhoAmIResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return consumeString(typ, b, &m.UserID)
	case 2:
		return consumeString(typ, b, &m.Username)
	case 3:
		return consumeString(typ, b, &m.Role)
	case 4:
		return consumeTime(typ, b, &m.ExpiresAt)
	}
	return 0, nil
}

func (m *PingResponse) appendWire(b []byte) ([]byte, error) {
	return appendString(b, 1, m.Status), nil
}

func (m *PingResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return consumeString(typ, b, &m.Status)
	}
	return 0, nil
}

// Messages without fields.

func (m *LogoutAllRequest) appendWire(b []byte) ([]byte, error) { return b, nil }
func (m *LogoutAllRequest) consumeField(protowire.Number, protowire.Type, []byte) (int, error) {
	return 0, nil
}

func (m *Empty) appendWire(b []byte) ([]byte, error) { return b, nil }
func (m *Empty) consumeField(protowire.Number, protowire.Type, []byte) (int, error) {
	return 0, nil
}

func (m *ListSessionsRequest) appendWire(b []byte) ([]byte, error) { return b, nil }
func (m *ListSessionsRequest) consumeField(protowire.Number, protowire.Type, []byte) (int, error) {
	return 0, nil
}

func (m *WhoAmIRequest) appendWire(b []byte) ([]byte, error) { return b, nil }
func (m *WhoAmIRequest) consumeField(protowire.Number, protowire.Type, []byte) (int, error) {
	return 0, nil
}

func (m *PingRequest) appendWire(b []byte) ([]byte, error) { return b, nil }
func (m *PingRequest) consumeField(protowire.Number, protowire.Type, []byte) (int, error) {
	return 0, nil
}
