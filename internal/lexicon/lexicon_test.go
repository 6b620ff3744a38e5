package lexicon

import "testing"

func TestHasRiskTermMatchesChineseAndEnglish(t *testing.T) {
	if !HasRiskTerm("震惊！内部消息称属实") {
		t.Fatal("expected Chinese risk-term phrase to match")
	}
	if !HasRiskTerm("this is shocking news") {
		t.Fatal("expected English risk-term phrase to match")
	}
	if HasRiskTerm("a perfectly ordinary sentence") {
		t.Fatal("expected no match on neutral text")
	}
}

func TestCountAbsoluteRhetoric(t *testing.T) {
	if n := CountAbsoluteRhetoric("这是必然的，100%真实，绝对可信"); n != 3 {
		t.Fatalf("expected 3 rhetoric markers, got %d", n)
	}
}

func TestHasAttributedSource(t *testing.T) {
	if !HasAttributedSource("据新华社报道") {
		t.Fatal("expected 新华社 to count as an attributed source")
	}
	if HasAttributedSource("某网友爆料称") {
		t.Fatal("expected an anonymous source phrase to not match")
	}
}

func TestIsNewsDateline(t *testing.T) {
	if !IsNewsDateline("本报记者张三报道") {
		t.Fatal("expected a 记者...报道 dateline to match")
	}
	if IsNewsDateline("普通聊天内容") {
		t.Fatal("expected ordinary text to not match a dateline")
	}
}

func TestHasRefuteAndOfficialTerms(t *testing.T) {
	if !HasRefuteTerm("官方辟谣：这是谣言") {
		t.Fatal("expected 辟谣/谣言 to count as refute terms")
	}
	if !HasOfficialTerm("according to officials") {
		t.Fatal("expected official-source phrase to match")
	}
}
