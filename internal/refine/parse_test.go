package refine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrict(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    StrictVerdict
		wantErr bool
	}{
		{
			name:  "plain object",
			reply: `{"score": 1, "missing_evidence": ""}`,
			want:  StrictVerdict{Score: 1},
		},
		{
			name:  "missing evidence",
			reply: `{"score": 0, "missing_evidence": "birth year of the director"}`,
			want:  StrictVerdict{Score: 0, MissingEvidence: "birth year of the director"},
		},
		{
			name:  "fenced block",
			reply: "Here is my verdict:\n```json\n{\"score\": 1, \"missing_evidence\": \"\"}\n```",
			want:  StrictVerdict{Score: 1},
		},
		{
			name:  "trailing comma repaired",
			reply: `{"score": 0, "missing_evidence": "release date",}`,
			want:  StrictVerdict{MissingEvidence: "release date"},
		},
		{
			name:  "string score",
			reply: `{"score": "1"}`,
			want:  StrictVerdict{Score: 1},
		},
		{
			name:  "missing fields default",
			reply: `{}`,
			want:  StrictVerdict{},
		},
		{
			name:  "fractional score keeps evidence",
			reply: `{"score": 0.5, "missing_evidence": "X"}`,
			want:  StrictVerdict{MissingEvidence: "X"},
		},
		{
			name:  "null score keeps evidence",
			reply: `{"score": null, "missing_evidence": "founding year"}`,
			want:  StrictVerdict{MissingEvidence: "founding year"},
		},
		{
			name:  "word score",
			reply: `{"score": "yes", "missing_evidence": "X"}`,
			want:  StrictVerdict{MissingEvidence: "X"},
		},
		{name: "not json", reply: "The evidence is sufficient.", wantErr: true},
		{name: "null", reply: "null", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrict(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLoose(t *testing.T) {
	tests := []struct {
		reply   string
		want    float64
		wantErr bool
	}{
		{reply: "0.85", want: 0.85},
		{reply: "  1\n", want: 1},
		{reply: "`0.3`", want: 0.3},
		{reply: `"0.6"`, want: 0.6},
		{reply: "score: 0.7", wantErr: true},
		{reply: "NaN", wantErr: true},
		{reply: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, err := ParseLoose(tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotANumber)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseFinal(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Answer
		wantErr error
	}{
		{
			name:  "both fields",
			reply: `{"process": "The passage names the director.", "final answer": "Tim Burton"}`,
			want:  Answer{Process: "The passage names the director.", Final: "Tim Burton"},
		},
		{
			name:  "mixed text",
			reply: "Sure.\n{\n  \"process\": \"Both are American.\",\n  \"final answer\": \"yes\"\n}\nHope this helps.",
			want:  Answer{Process: "Both are American.", Final: "yes"},
		},
		{
			name:  "non-string answer",
			reply: `{"process": "counted", "final answer": 1994}`,
			want:  Answer{Process: "counted", Final: "1994"},
		},
		{
			name:  "missing brace repaired",
			reply: `{"process": "p", "final answer": "a"`,
			want:  Answer{Process: "p", Final: "a"},
		},
		{
			name:  "process only",
			reply: `{"process": "no passage names the director"}`,
			want:  Answer{Process: "no passage names the director"},
		},
		{
			name:  "final answer only",
			reply: `{"final answer": "no"}`,
			want:  Answer{Final: "no"},
		},
		{name: "unrelated object", reply: `{"answer": "x"}`, wantErr: ErrMissingAnswer},
		{name: "no json", reply: "Tim Burton", wantErr: ErrNoJSONObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFinal(tt.reply)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJudgePrompt(t *testing.T) {
	assert.Equal(t, `{"question":"Is it \"raining\"?","evidence":"\nIt rains."}`,
		JudgePrompt(`Is it "raining"?`, "\nIt rains."))
}

func TestAnswerPrompt_ContainsInputs(t *testing.T) {
	p := AnswerPrompt("Who directed Ed Wood?", "Tim Burton directed Ed Wood.")
	assert.Contains(t, p, "Reference: Tim Burton directed Ed Wood.")
	assert.Contains(t, p, "Question: Who directed Ed Wood?")
	assert.Contains(t, p, `"final answer"`)
}
