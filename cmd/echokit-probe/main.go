// Command echokit-probe replays synthetic turns against a running echokit
// server and reports per-stage latency for each one. Audio turns stream a
// WAV file as paced input_audio_buffer.append frames followed by a commit;
// text turns send conversation.item.create plus response.create. The probe
// measures the gap between the trigger frame and each server event of the
// response ladder.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saymain/echokit-server/internal/audio"
	"github.com/saymain/echokit-server/internal/protocol"
)

// The realtime endpoint ingests 24 kHz mono PCM16LE; WAV input in any other
// layout is downmixed and resampled before replay.
const appendSampleRate = 24000

type options struct {
	baseURL     string
	wavPath     string
	turns       int
	chunkMS     int
	realtime    float64
	turnTimeout time.Duration
	textOnly    bool
	verbose     bool
	texts       []string
}

// wsEvent is a flattened view of every server event the probe cares about.
// Fields it does not inspect are left undecoded.
type wsEvent struct {
	Type       string        `json:"type"`
	Delta      string        `json:"delta,omitempty"`
	Text       string        `json:"text,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	Error      *wsEventError `json:"error,omitempty"`
}

type wsEventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// turnReport holds the latencies from the turn trigger (commit frame or
// response.create) to each ladder stage. Zero means the stage never fired.
type turnReport struct {
	committed   time.Duration
	transcribed time.Duration
	created     time.Duration
	firstText   time.Duration
	firstAudio  time.Duration
	done        time.Duration
	transcript  string
	reply       string
	audioBytes  int
}

var defaultUtterances = []string{
	"用一句话介绍一下你自己。",
	"今天适合做什么运动？",
	"讲一个简短的冷笑话。",
	"明天还会更热吗？",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "echokit-probe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "echokit-probe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "echokit base URL")
	flag.StringVar(&cfg.wavPath, "wav", "", "PCM16 WAV file replayed as the user turn (text turns when empty)")
	flag.StringVar(&textsRaw, "texts", "", "text-turn utterances separated by '|' (optional)")
	flag.IntVar(&cfg.turns, "turns", 3, "number of turns to replay")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 60, "audio chunk size in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 2.0, "chunk pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for response.done per turn in milliseconds")
	flag.BoolVar(&cfg.textOnly, "text-only", false, "negotiate the text modality only (no audio deltas)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print transcripts and replies per turn")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.chunkMS < 10 || cfg.chunkMS > 2000 {
		return options{}, fmt.Errorf("chunk-ms must be in [10,2000]")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			t := strings.TrimSpace(part)
			if t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	var pcm []byte
	if cfg.wavPath != "" {
		var err error
		pcm, err = loadTurnPCM(cfg.wavPath)
		if err != nil {
			return fmt.Errorf("load wav: %w", err)
		}
	}

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	if _, err := awaitEvent(conn, string(protocol.TypeSessionCreated), cfg.turnTimeout); err != nil {
		return err
	}
	if _, err := awaitEvent(conn, string(protocol.TypeConversationCreated), cfg.turnTimeout); err != nil {
		return err
	}

	modalities := []protocol.Modality{protocol.ModalityText, protocol.ModalityAudio}
	if cfg.textOnly {
		modalities = []protocol.Modality{protocol.ModalityText}
	}
	update := protocol.SessionUpdate{
		Type:    protocol.TypeSessionUpdate,
		Session: protocol.SessionConfig{Modalities: modalities},
	}
	if err := conn.WriteJSON(update); err != nil {
		return fmt.Errorf("send session.update: %w", err)
	}
	if _, err := awaitEvent(conn, string(protocol.TypeSessionUpdated), cfg.turnTimeout); err != nil {
		return err
	}

	mode := "text"
	if pcm != nil {
		mode = fmt.Sprintf("wav (%s)", pcmDuration(pcm).Round(time.Millisecond))
	}
	fmt.Printf("echokit-probe: url=%s mode=%s turns=%d chunk_ms=%d realtime=%.2f\n",
		wsURL, mode, cfg.turns, cfg.chunkMS, cfg.realtime)

	var totalDone, totalFirstText time.Duration
	for i := 0; i < cfg.turns; i++ {
		var rep turnReport
		if pcm != nil {
			rep, err = runAudioTurn(conn, pcm, cfg)
		} else {
			rep, err = runTextTurn(conn, cfg.texts[i%len(cfg.texts)], cfg)
		}
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		fmt.Printf("echokit-probe: turn %d/%d committed=%s transcribed=%s response=%s first_text=%s first_audio=%s done=%s audio_bytes=%d\n",
			i+1, cfg.turns,
			fmtStage(rep.committed), fmtStage(rep.transcribed), fmtStage(rep.created),
			fmtStage(rep.firstText), fmtStage(rep.firstAudio), fmtStage(rep.done), rep.audioBytes)
		if cfg.verbose {
			if rep.transcript != "" {
				fmt.Printf("echokit-probe: turn %d heard=%q\n", i+1, rep.transcript)
			}
			fmt.Printf("echokit-probe: turn %d reply=%q\n", i+1, rep.reply)
		}
		totalDone += rep.done
		totalFirstText += rep.firstText
	}

	n := time.Duration(cfg.turns)
	fmt.Printf("echokit-probe: %d turns, avg_first_text=%s avg_done=%s\n",
		cfg.turns, fmtStage(totalFirstText/n), fmtStage(totalDone/n))
	return nil
}

// runAudioTurn streams the PCM as paced append frames and clocks the ladder
// from the commit frame.
func runAudioTurn(conn *websocket.Conn, pcm []byte, cfg options) (turnReport, error) {
	if err := sendAppendFrames(conn, pcm, cfg.chunkMS, cfg.realtime); err != nil {
		return turnReport{}, fmt.Errorf("send audio: %w", err)
	}
	start := time.Now()
	commit := protocol.InputAudioBufferCommit{Type: protocol.TypeInputAudioBufferCommit}
	if err := conn.WriteJSON(commit); err != nil {
		return turnReport{}, fmt.Errorf("send commit: %w", err)
	}
	return observeTurn(conn, start, cfg.turnTimeout)
}

// runTextTurn creates a user message item, waits for its echo, then clocks
// the ladder from response.create.
func runTextTurn(conn *websocket.Conn, text string, cfg options) (turnReport, error) {
	create := protocol.ConversationItemCreate{
		Type: protocol.TypeConversationItemCreate,
		Item: protocol.ConversationItem{
			Type:    protocol.ItemTypeMessage,
			Role:    protocol.RoleUser,
			Content: []protocol.ContentPart{protocol.InputTextPart(text)},
		},
	}
	if err := conn.WriteJSON(create); err != nil {
		return turnReport{}, fmt.Errorf("send item.create: %w", err)
	}
	if _, err := awaitEvent(conn, string(protocol.TypeConversationItemCreated), cfg.turnTimeout); err != nil {
		return turnReport{}, err
	}
	start := time.Now()
	if err := conn.WriteJSON(protocol.ResponseCreate{Type: protocol.TypeResponseCreate}); err != nil {
		return turnReport{}, fmt.Errorf("send response.create: %w", err)
	}
	return observeTurn(conn, start, cfg.turnTimeout)
}

func sendAppendFrames(conn *websocket.Conn, pcm []byte, chunkMS int, realtime float64) error {
	bytesPerChunk := appendSampleRate * 2 * chunkMS / 1000
	if bytesPerChunk < 2 {
		bytesPerChunk = 2
	}
	if bytesPerChunk%2 != 0 {
		bytesPerChunk++
	}

	for off := 0; off < len(pcm); {
		end := off + bytesPerChunk
		if end > len(pcm) {
			end = len(pcm)
		}
		if (end-off)%2 != 0 {
			end--
		}
		if end <= off {
			break
		}
		msg := protocol.InputAudioBufferAppend{
			Type:  protocol.TypeInputAudioBufferAppend,
			Audio: base64.StdEncoding.EncodeToString(pcm[off:end]),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		chunkBytes := end - off
		off = end

		chunkDuration := time.Duration(float64(time.Duration(chunkBytes)*time.Second/time.Duration(appendSampleRate*2)) / realtime)
		if chunkDuration <= 0 {
			chunkDuration = 10 * time.Millisecond
		}
		time.Sleep(chunkDuration)
	}
	return nil
}

// observeTurn consumes server events until response.done, stamping each
// ladder stage relative to start. Unrecognized events are skipped.
func observeTurn(conn *websocket.Conn, start time.Time, timeout time.Duration) (turnReport, error) {
	var rep turnReport
	deadline := time.Now().Add(timeout)
	for {
		evt, err := readEvent(conn, deadline)
		if err != nil {
			return rep, fmt.Errorf("await response.done: %w", err)
		}
		switch evt.Type {
		case string(protocol.TypeInputAudioBufferCommitted):
			rep.committed = time.Since(start)
		case string(protocol.TypeInputAudioTranscriptionCompleted):
			rep.transcribed = time.Since(start)
			rep.transcript = evt.Transcript
		case string(protocol.TypeResponseCreated):
			rep.created = time.Since(start)
		case string(protocol.TypeResponseTextDelta):
			if rep.firstText == 0 {
				rep.firstText = time.Since(start)
			}
		case string(protocol.TypeResponseTextDone):
			rep.reply = evt.Text
		case string(protocol.TypeResponseAudioDelta):
			if rep.firstAudio == 0 {
				rep.firstAudio = time.Since(start)
			}
			if b, err := base64.StdEncoding.DecodeString(evt.Delta); err == nil {
				rep.audioBytes += len(b)
			}
		case string(protocol.TypeResponseDone):
			rep.done = time.Since(start)
			return rep, nil
		case string(protocol.TypeError):
			if evt.Error != nil {
				return rep, fmt.Errorf("server error %s: %s", evt.Error.Code, evt.Error.Message)
			}
			return rep, fmt.Errorf("server error")
		}
	}
}

func awaitEvent(conn *websocket.Conn, want string, timeout time.Duration) (wsEvent, error) {
	deadline := time.Now().Add(timeout)
	for {
		evt, err := readEvent(conn, deadline)
		if err != nil {
			return wsEvent{}, fmt.Errorf("await %s: %w", want, err)
		}
		if evt.Type == string(protocol.TypeError) {
			if evt.Error != nil {
				return wsEvent{}, fmt.Errorf("await %s: server error %s: %s", want, evt.Error.Code, evt.Error.Message)
			}
			return wsEvent{}, fmt.Errorf("await %s: server error", want)
		}
		if evt.Type == want {
			return evt, nil
		}
	}
}

func readEvent(conn *websocket.Conn, deadline time.Time) (wsEvent, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return wsEvent{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return wsEvent{}, err
	}
	var evt wsEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return wsEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/realtime"
	return u.String(), nil
}

// loadTurnPCM reads a WAV file and converts it into the PCM layout the
// append frames carry.
func loadTurnPCM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	samples := downmixMono(clip.Samples, clip.Channels)
	if clip.SampleRate != appendSampleRate {
		samples = audio.ResampleLinear(samples, 1, clip.SampleRate, appendSampleRate)
	}
	pcm := audio.PCM16FromFloat32(samples)
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%s contains no PCM frames", path)
	}
	return pcm, nil
}

func downmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

func pcmDuration(pcm []byte) time.Duration {
	return time.Duration(len(pcm)/2) * time.Second / appendSampleRate
}

func fmtStage(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
