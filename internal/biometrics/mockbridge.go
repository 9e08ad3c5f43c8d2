package biometrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

type mockBridgeMessage struct {
	Frame     *string  `json:"frame"`
	Timestamp *float64 `json:"timestamp"`
	End       bool     `json:"end"`
}

type mockBridgeReply struct {
	BPM        float64 `json:"bpm"`
	HRV        float64 `json:"hrv"`
	Confidence float64 `json:"confidence"`
}

// RunMockBridge 开发用 bridge：stdin 读 {frame,timestamp}，stdout 回 {bpm,hrv,confidence}。
// 无法解析或缺字段的行直接忽略；收到 {"end":true} 或 stdin 关闭时返回 nil。
// elapsed 以首帧时间戳为起点，读数钳位在 bridge 区间。
func RunMockBridge(in io.Reader, out io.Writer, gen *Generator) error {
	if gen == nil {
		gen = NewGenerator(BridgeBands, 0)
	}
	baseBPM, baseHRV := gen.Baselines()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), bridgeMaxLine)

	var firstTS int64
	seen := false
	for scanner.Scan() {
		var msg mockBridgeMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.End {
			return nil
		}
		if msg.Frame == nil || msg.Timestamp == nil {
			continue
		}

		ts := int64(*msg.Timestamp)
		if !seen {
			firstTS, seen = ts, true
		}
		r := gen.Reading(baseBPM, baseHRV, float64(ts-firstTS)/1000, ts)
		if err := enc.Encode(mockBridgeReply{BPM: r.BPM, HRV: r.HRV, Confidence: r.Confidence}); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush reply: %w", err)
		}
	}
	return scanner.Err()
}
