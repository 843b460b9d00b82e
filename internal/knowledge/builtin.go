package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/pkg/logger"
)

type builtinEntry struct {
	Slug  string
	Title string
	Text  string
}

// builtinKB is the static knowledge base loaded at startup, one pool per
// academic domain. User operations never touch these chunks.
var builtinKB = map[string][]builtinEntry{
	"sciences": {
		{
			Slug:  "photosynthese",
			Title: "La photosynthèse",
			Text: "La photosynthèse est le processus par lequel les plantes vertes, les algues et certaines bactéries " +
				"convertissent l'énergie lumineuse en énergie chimique. Dans les chloroplastes, la chlorophylle capte " +
				"la lumière du soleil pour transformer le dioxyde de carbone et l'eau en glucose et en dioxygène. " +
				"Ce processus se déroule en deux phases: les réactions photochimiques, dépendantes de la lumière, " +
				"et le cycle de Calvin, qui fixe le carbone. La photosynthèse est à la base de presque toutes les " +
				"chaînes alimentaires et produit l'essentiel du dioxygène atmosphérique.",
		},
		{
			Slug:  "cellule",
			Title: "La cellule",
			Text: "La cellule est l'unité structurale et fonctionnelle de tous les êtres vivants. Les cellules eucaryotes " +
				"possèdent un noyau délimité par une membrane ainsi que des organites spécialisés comme les mitochondries, " +
				"siège de la respiration cellulaire et de la production d'ATP. Les cellules procaryotes, comme les " +
				"bactéries, n'ont pas de noyau. La théorie cellulaire affirme que toute cellule provient d'une autre cellule.",
		},
	},
	"littérature": {
		{
			Slug:  "romantisme",
			Title: "Le romantisme",
			Text: "Le romantisme est un mouvement littéraire et artistique qui s'épanouit en Europe au début du XIXe siècle. " +
				"En France, il s'affirme avec Lamartine, Hugo, Musset et Vigny. Le romantisme privilégie l'expression du moi, " +
				"la sensibilité, le lyrisme et la nature, en réaction contre le rationalisme des Lumières et les règles " +
				"classiques. La bataille d'Hernani en 1830 marque le triomphe du drame romantique.",
		},
		{
			Slug:  "dissertation",
			Title: "La dissertation littéraire",
			Text: "La dissertation littéraire est un exercice d'argumentation qui demande d'examiner une question en " +
				"confrontant des thèses à l'aide d'exemples tirés des œuvres. Elle s'organise classiquement en une " +
				"introduction posant la problématique, un développement en deux ou trois parties progressives, et une " +
				"conclusion qui répond à la question et ouvre une perspective.",
		},
	},
	"histoire": {
		{
			Slug:  "revolution-francaise",
			Title: "La Révolution française",
			Text: "La Révolution française, de 1789 à 1799, met fin à l'Ancien Régime. La prise de la Bastille le " +
				"14 juillet 1789, la Déclaration des droits de l'homme et du citoyen, puis la proclamation de la " +
				"République en 1792 transforment profondément la société française. La période de la Terreur, la chute " +
				"de Robespierre et l'arrivée au pouvoir de Napoléon Bonaparte en 1799 closent cette décennie fondatrice.",
		},
	},
	"philosophie": {
		{
			Slug:  "methode-cartesienne",
			Title: "Le doute méthodique",
			Text: "Descartes fonde sa philosophie sur le doute méthodique: rejeter comme faux tout ce qui peut être " +
				"révoqué en doute afin d'atteindre une première certitude, le cogito. « Je pense, donc je suis » devient " +
				"le point d'appui d'une reconstruction du savoir. La méthode cartésienne repose sur l'évidence, " +
				"l'analyse, la synthèse et le dénombrement.",
		},
	},
	"économie": {
		{
			Slug:  "offre-demande",
			Title: "L'offre et la demande",
			Text: "Le modèle de l'offre et de la demande décrit la formation des prix sur un marché concurrentiel. " +
				"Quand le prix augmente, la quantité offerte croît et la quantité demandée diminue; l'équilibre se situe " +
				"au point où les deux courbes se croisent. L'élasticité mesure la sensibilité des quantités aux " +
				"variations de prix ou de revenu.",
		},
	},
	"informatique": {
		{
			Slug:  "algorithme",
			Title: "La notion d'algorithme",
			Text: "Un algorithme est une suite finie et non ambiguë d'instructions permettant de résoudre un problème. " +
				"La complexité algorithmique évalue le coût en temps ou en mémoire en fonction de la taille de l'entrée. " +
				"Les structures de données — tableaux, listes, arbres, tables de hachage — conditionnent l'efficacité " +
				"des algorithmes qui les manipulent.",
		},
	},
	"psychologie": {
		{
			Slug:  "memoire",
			Title: "Les systèmes de mémoire",
			Text: "La psychologie cognitive distingue la mémoire sensorielle, la mémoire de travail et la mémoire à long " +
				"terme. La mémoire de travail, à capacité limitée, maintient et manipule l'information pendant quelques " +
				"secondes. La consolidation transfère les souvenirs vers la mémoire à long terme, où l'on sépare mémoire " +
				"épisodique, sémantique et procédurale.",
		},
	},
	"géographie": {
		{
			Slug:  "urbanisation",
			Title: "L'urbanisation mondiale",
			Text: "Plus de la moitié de la population mondiale vit désormais en ville. L'urbanisation s'accompagne de " +
				"métropolisation: les grandes agglomérations concentrent les fonctions de commandement économique, " +
				"politique et culturel. Les mégapoles du Sud connaissent une croissance rapide, souvent marquée par " +
				"l'étalement urbain et les inégalités socio-spatiales.",
		},
	},
	"sociologie": {
		{
			Slug:  "socialisation",
			Title: "La socialisation",
			Text: "La socialisation désigne le processus par lequel les individus intériorisent les normes et les valeurs " +
				"de leur société. On distingue la socialisation primaire, durant l'enfance au sein de la famille et de " +
				"l'école, et la socialisation secondaire, qui se poursuit à l'âge adulte. Bourdieu analyse ce processus " +
				"à travers la notion d'habitus.",
		},
	},
}

// LoadBuiltins inserts the builtin pools, embedding what the encoder will
// accept. Chunk ids are deterministic so restarts do not duplicate rows.
func (s *Store) LoadBuiltins(ctx context.Context) error {
	total := 0
	for domain, entries := range builtinKB {
		for _, entry := range entries {
			pieces := ChunkText(entry.Text)
			embeddings := s.embedAll(ctx, pieces)

			for i, piece := range pieces {
				chunk := &Chunk{
					ID:     fmt.Sprintf("builtin:%s:%s#%d", domain, entry.Slug, i),
					Owner:  "builtin:" + domain,
					Domain: domain,
					Title:  entry.Title,
					Text:   piece,
				}
				var vec []float32
				if embeddings != nil {
					vec = embeddings[i]
				}
				if err := s.insert(ctx, chunk, vec); err != nil {
					return fmt.Errorf("failed to load builtin %s: %w", chunk.ID, err)
				}
				total++
			}
		}
	}

	logger.Info("builtin knowledge base loaded", zap.Int("chunks", total))
	return nil
}

// BuiltinDomains lists the domains that ship with builtin chunks.
func BuiltinDomains() []string {
	out := make([]string, 0, len(builtinKB))
	for d := range builtinKB {
		out = append(out, d)
	}
	return out
}
