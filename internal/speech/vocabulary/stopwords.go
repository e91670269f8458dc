package vocabulary

// PortugueseStopwords are ignored when counting repetitions. The list also
// holds the common fillers, which have their own analysis.
var PortugueseStopwords = []string{
	"de", "a", "o", "que", "e", "do", "da", "em", "um", "para", "é", "com",
	"não", "uma", "os", "no", "se", "na", "por", "mais", "as", "dos", "como",
	"mas", "foi", "ao", "ele", "das", "tem", "à", "seu", "sua", "ou", "ser",
	"quando", "muito", "há", "nos", "já", "está", "eu", "também", "só",
	"pelo", "pela", "até", "isso", "ela", "entre", "era", "depois", "sem",
	"mesmo", "aos", "ter", "seus", "quem", "nas", "me", "esse", "eles",
	"estão", "você", "tinha", "foram", "essa", "num", "nem", "suas", "meu",
	"às", "minha", "têm", "numa", "pelos", "elas", "havia", "seja", "qual",
	"será", "nós", "tenho", "lhe", "deles", "essas", "esses", "pelas",
	"este", "fosse", "dele", "tu", "te", "vocês", "vos", "lhes", "meus",
	"minhas", "teu", "tua", "teus", "tuas", "nosso", "nossa", "nossos",
	"nossas", "dela", "tipo", "né", "tá", "aí", "então", "assim",
}
